package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/logger"
)

type stubClassifier struct {
	calls  int
	err    error
	result *dto.ClassificationResult
	wait   bool
}

func (s *stubClassifier) Name() string { return "stub" }

func (s *stubClassifier) Classify(ctx context.Context, _ dto.ClassificationRequest) (*dto.ClassificationResult, error) {
	s.calls++
	if s.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubClassifier{err: errors.New("provider down")}
	c := WithBreaker(stub, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, logger.NewNopLogger())

	for i := 0; i < 2; i++ {
		_, err := c.Classify(context.Background(), dto.ClassificationRequest{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.Classify(context.Background(), dto.ClassificationRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, gobreaker.StateOpen, c.(*guardedClassifier).State())
}

func TestBreaker_PassesResult(t *testing.T) {
	want := &dto.ClassificationResult{Sentiment: "neutral", Category: "other", Labels: []string{"misc"}}
	stub := &stubClassifier{result: want}
	c := WithBreaker(stub, BreakerConfig{MaxFailures: 1}, logger.NewNopLogger())

	got, err := c.Classify(context.Background(), dto.ClassificationRequest{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "stub", c.Name())
}

func TestBreaker_CallTimeout(t *testing.T) {
	stub := &stubClassifier{wait: true}
	c := WithBreaker(stub, BreakerConfig{MaxFailures: 5, CallTimeout: 20 * time.Millisecond}, logger.NewNopLogger())

	_, err := c.Classify(context.Background(), dto.ClassificationRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	stub := &stubClassifier{wait: true}
	c := WithBreaker(stub, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Classify(ctx, dto.ClassificationRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, c.(*guardedClassifier).State())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.ClassifierConfig{Provider: "carrier-pigeon"}, logger.NewNopLogger())
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNew_WrapsProvider(t *testing.T) {
	c, err := New(context.Background(), &config.ClassifierConfig{
		Provider:           "http",
		HTTPUrl:            "http://localhost:1/classify",
		Timeout:            time.Second,
		BreakerMaxFailures: 3,
	}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "http", c.Name())
	_, ok := c.(*guardedClassifier)
	assert.True(t, ok)
}
