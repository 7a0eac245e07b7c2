package ingest

type Config struct {
	// MaxFileSizeBytes is the upload size ceiling. Defaults to 1 GB.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" env:"INGEST_MAX_FILE_SIZE" env-default:"1000000000"`

	// AllowedMimeTypes is the container type allow-list checked before any
	// side effect occurs.
	AllowedMimeTypes []string `yaml:"allowed_mime_types" env:"INGEST_ALLOWED_MIME_TYPES" env-default:"video/mp4,video/webm,video/ogg"`

	// OutputProfile names the transcode output template submitted for
	// proxy generation.
	OutputProfile string `yaml:"output_profile" env:"INGEST_OUTPUT_PROFILE" env-default:"proxy"`

	// WatchPath, when set, enables the watch-folder: files dropped in to
	// this directory are submitted through the coordinator exactly as
	// uploads are.
	WatchPath string `yaml:"watch_path" env:"INGEST_WATCH_PATH"`
}

func (c Config) mimeTypeAllowed(mimeType string) bool {
	for _, allowed := range c.AllowedMimeTypes {
		if allowed == mimeType {
			return true
		}
	}

	return false
}
