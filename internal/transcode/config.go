package transcode

import "time"

type Config struct {
	// PollIntervalSeconds is the fixed sleep between polls of an in-flight
	// remote job.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" env:"TRANSCODE_POLL_INTERVAL" env-default:"5"`

	// PollerParallelism bounds how many progress pollers can be in-flight
	// at once; submissions beyond the limit queue.
	PollerParallelism int `yaml:"poller_parallelism" env:"TRANSCODE_POLLER_PARALLELISM" env-default:"4"`

	// RetryAttempts and RetryBaseMilliseconds control the bounded
	// exponential backoff applied to every provider call.
	RetryAttempts         int `yaml:"retry_attempts" env:"TRANSCODE_RETRY_ATTEMPTS" env-default:"3"`
	RetryBaseMilliseconds int `yaml:"retry_base_ms" env:"TRANSCODE_RETRY_BASE_MS" env-default:"500"`

	// OutputProfile names the provider output template used for proxy
	// generation.
	OutputProfile string `yaml:"output_profile" env:"TRANSCODE_OUTPUT_PROFILE" env-default:"proxy"`

	MediaConvert MediaConvertConfig `yaml:"media_convert"`
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMilliseconds) * time.Millisecond
}
