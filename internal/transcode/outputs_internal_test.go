package transcode

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/mediaconvert"
	"github.com/stretchr/testify/assert"
)

func completedJobFixture() *mediaconvert.Job {
	return &mediaconvert.Job{
		Status: aws.String(mediaconvert.JobStatusComplete),
		Settings: &mediaconvert.JobSettings{
			Inputs: []*mediaconvert.Input{{
				FileInput: aws.String("s3://proxa-media/sources/holiday.mp4"),
			}},
			OutputGroups: []*mediaconvert.OutputGroup{{
				Name: aws.String("proxy"),
				OutputGroupSettings: &mediaconvert.OutputGroupSettings{
					FileGroupSettings: &mediaconvert.FileGroupSettings{
						Destination: aws.String("s3://proxa-media/proxy/"),
					},
				},
				Outputs: []*mediaconvert.Output{{
					NameModifier: aws.String("-proxy"),
				}},
			}},
		},
	}
}

func TestDeriveOutputsIsDeterministicAcrossRepeatedPolls(t *testing.T) {
	provider, err := NewMediaConvertProvider(MediaConvertConfig{
		Region:   "eu-west-2",
		Role:     "arn:aws:iam::123456789:role/MediaConvertRole",
		S3Bucket: "proxa-media",
		Templates: map[string]map[string]any{
			"proxy": {"preset": "p", "name_modifier": "-proxy"},
		},
	})
	assert.Nil(t, err)

	job := completedJobFixture()
	first := provider.deriveOutputs(job)
	second := provider.deriveOutputs(job)

	assert.Equal(t, first, second)
	assert.Len(t, first, 1)
	assert.Equal(t, "holiday-proxy.mp4", first[0].Name)
	assert.Equal(t, "s3://proxa-media/proxy/holiday-proxy.mp4", first[0].URI)
}

func TestDeriveOutputsSkipsUnknownGroupsAndMissingSettings(t *testing.T) {
	provider, err := NewMediaConvertProvider(MediaConvertConfig{
		Region:    "eu-west-2",
		Role:      "arn:aws:iam::123456789:role/MediaConvertRole",
		S3Bucket:  "proxa-media",
		Templates: map[string]map[string]any{},
	})
	assert.Nil(t, err)

	assert.Empty(t, provider.deriveOutputs(&mediaconvert.Job{}))

	job := completedJobFixture()
	assert.Empty(t, provider.deriveOutputs(job), "groups without a configured template are skipped")
}
