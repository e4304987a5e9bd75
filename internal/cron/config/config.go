package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Exact duplicate purge, daily at 03:00
	CronSchedulePurgeDuplicates string `env:"CRON_SCHEDULE_PURGE_DUPLICATES" envDefault:"0 0 3 * * *"`
}
