package transcode

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/mediaconvert"
	"github.com/mitchellh/mapstructure"
)

var mcLog = logger.Get("MediaConvert")

type (
	MediaConvertConfig struct {
		Region   string `yaml:"region" env:"AWS_REGION"`
		Endpoint string `yaml:"endpoint" env:"MEDIA_CONVERT_ENDPOINT"`
		Role     string `yaml:"role" env:"MEDIA_CONVERT_ROLE"`
		Queue    string `yaml:"queue" env:"MEDIA_CONVERT_QUEUE"`
		S3Bucket string `yaml:"s3_bucket" env:"AWS_S3_BUCKET"`

		// Templates maps an output profile name to its loosely-typed
		// settings as found in the config file; they are decoded in to
		// OutputTemplate structs at construction time.
		Templates map[string]map[string]any `yaml:"templates"`
	}

	// OutputTemplate describes a single named output profile: which
	// MediaConvert preset to apply and how the resulting artifact is
	// named underneath the destination prefix.
	OutputTemplate struct {
		Preset       string `mapstructure:"preset"`
		NameModifier string `mapstructure:"name_modifier"`
		Extension    string `mapstructure:"extension"`
		Destination  string `mapstructure:"destination"`
	}

	// MediaConvertProvider submits and polls transcode jobs against AWS
	// MediaConvert.
	MediaConvertProvider struct {
		client    *mediaconvert.MediaConvert
		config    MediaConvertConfig
		templates map[string]OutputTemplate
	}
)

// NewMediaConvertProvider validates the provider configuration, decodes the
// output templates and constructs the AWS client. Missing required
// configuration is fatal at startup, not per-request.
func NewMediaConvertProvider(config MediaConvertConfig) (*MediaConvertProvider, error) {
	required := map[string]string{
		"region":    config.Region,
		"role":      config.Role,
		"s3_bucket": config.S3Bucket,
	}
	for name, value := range required {
		if value == "" {
			return nil, verr.Newf(verr.Configuration, "media convert configuration is missing required field '%s'", name)
		}
	}

	templates := make(map[string]OutputTemplate, len(config.Templates))
	for name, raw := range config.Templates {
		var template OutputTemplate
		if err := mapstructure.Decode(raw, &template); err != nil {
			return nil, verr.Wrapf(verr.Configuration, err, "output template '%s' is malformed", name)
		}
		if template.Extension == "" {
			template.Extension = ".mp4"
		}
		if template.Destination == "" {
			template.Destination = fmt.Sprintf("s3://%s/proxy/", config.S3Bucket)
		}

		templates[name] = template
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	return &MediaConvertProvider{
		client:    mediaconvert.New(session.Must(session.NewSession(awsConfig))),
		config:    config,
		templates: templates,
	}, nil
}

// SubmitJob creates a MediaConvert job transcoding the source in to the
// named output profile and returns the remote job identifier.
func (p *MediaConvertProvider) SubmitJob(ctx context.Context, sourceURI string, outputProfile string) (string, error) {
	template, ok := p.templates[outputProfile]
	if !ok {
		return "", verr.Newf(verr.Configuration, "no output template named '%s' is configured", outputProfile)
	}

	input := &mediaconvert.CreateJobInput{
		Role: aws.String(p.config.Role),
		Settings: &mediaconvert.JobSettings{
			Inputs: []*mediaconvert.Input{{
				FileInput: aws.String(sourceURI),
			}},
			OutputGroups: []*mediaconvert.OutputGroup{{
				Name: aws.String(outputProfile),
				OutputGroupSettings: &mediaconvert.OutputGroupSettings{
					Type: aws.String(mediaconvert.OutputGroupTypeFileGroupSettings),
					FileGroupSettings: &mediaconvert.FileGroupSettings{
						Destination: aws.String(template.Destination),
					},
				},
				Outputs: []*mediaconvert.Output{{
					Preset:       aws.String(template.Preset),
					NameModifier: aws.String(template.NameModifier),
				}},
			}},
		},
	}
	if p.config.Queue != "" {
		input.Queue = aws.String(p.config.Queue)
	}

	resp, err := p.client.CreateJobWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("media convert job creation failed: %w", err)
	}

	jobID := aws.StringValue(resp.Job.Id)
	mcLog.Infof("Submitted media convert job %s for source %s (profile %s)\n", jobID, sourceURI, outputProfile)
	return jobID, nil
}

// PollJob fetches the current remote state of the job. For a completed job
// the output list is derived deterministically from the returned job
// settings, so repeated polls yield identical results.
func (p *MediaConvertProvider) PollJob(ctx context.Context, jobID string) (*JobStatus, error) {
	resp, err := p.client.GetJobWithContext(ctx, &mediaconvert.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return nil, fmt.Errorf("media convert job lookup failed for %s: %w", jobID, err)
	}

	job := resp.Job
	status := &JobStatus{}
	switch aws.StringValue(job.Status) {
	case mediaconvert.JobStatusSubmitted:
		status.State = StateQueued
	case mediaconvert.JobStatusProgressing:
		status.State = StateProgressing
		if job.JobPercentComplete != nil {
			pct := float64(aws.Int64Value(job.JobPercentComplete))
			status.ProgressPercent = &pct
		}
	case mediaconvert.JobStatusComplete:
		status.State = StateComplete
		status.Outputs = p.deriveOutputs(job)
	case mediaconvert.JobStatusError, mediaconvert.JobStatusCanceled:
		status.State = StateError
		status.Reason = aws.StringValue(job.ErrorMessage)
		if status.Reason == "" {
			status.Reason = fmt.Sprintf("remote job entered state %s", aws.StringValue(job.Status))
		}
	default:
		return nil, fmt.Errorf("media convert job %s reported unknown status '%s'", jobID, aws.StringValue(job.Status))
	}

	return status, nil
}

// deriveOutputs composes the artifact list for a completed job from its
// settings: one entry per output, named after the input file with the
// outputs name modifier and the templates extension applied.
func (p *MediaConvertProvider) deriveOutputs(job *mediaconvert.Job) asset.OutputFileList {
	if job.Settings == nil || len(job.Settings.Inputs) == 0 {
		return asset.OutputFileList{}
	}

	source := aws.StringValue(job.Settings.Inputs[0].FileInput)
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	outputs := make(asset.OutputFileList, 0)
	for _, group := range job.Settings.OutputGroups {
		template, ok := p.templates[aws.StringValue(group.Name)]
		if !ok {
			continue
		}

		destination := template.Destination
		if group.OutputGroupSettings != nil && group.OutputGroupSettings.FileGroupSettings != nil {
			destination = aws.StringValue(group.OutputGroupSettings.FileGroupSettings.Destination)
		}

		for _, output := range group.Outputs {
			name := base + aws.StringValue(output.NameModifier) + template.Extension
			outputs = append(outputs, asset.OutputFile{
				Name: name,
				URI:  strings.TrimSuffix(destination, "/") + "/" + name,
			})
		}
	}

	return outputs
}
