// Package blob provides the binary store that backs sourceRef and
// thumbnailRef. References are opaque keys; the engine never interprets
// them beyond handing them back to the store.
package blob

type Config struct {
	// Driver selects the storage backend: "local" or "s3".
	Driver string `yaml:"driver" env:"BLOB_DRIVER" env-default:"local"`

	// BaseDir is the root directory for the local driver.
	BaseDir string `yaml:"base_dir" env:"BLOB_BASE_DIR" env-default:"./data/blobs"`

	// Bucket and Region configure the s3 driver.
	Bucket string `yaml:"bucket" env:"BLOB_S3_BUCKET"`
	Region string `yaml:"region" env:"BLOB_S3_REGION"`
}
