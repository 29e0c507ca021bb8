package config

import "time"

// MLConfig configures the external recognition primitives. The service never
// runs models in-process: OCR shells out to tesseract and face analysis calls
// a separate face service over HTTP.
type MLConfig struct {
	// OCRCommand is the tesseract binary to execute.
	OCRCommand string `env:"OCR_COMMAND" envDefault:"tesseract"`

	// OCRLanguages is the tesseract language pack selector (tesseract -l syntax).
	OCRLanguages string `env:"OCR_LANGUAGES" envDefault:"eng+vie"`

	// OCRTimeout bounds a single OCR invocation.
	OCRTimeout time.Duration `env:"OCR_TIMEOUT" envDefault:"30s"`

	// FaceAPIBase is the base URL of the face comparison/detection service.
	// Required when the pipeline service is enabled.
	FaceAPIBase string `env:"FACE_API_BASE" envDefault:""`

	// FaceAPITimeout bounds a single face service call.
	FaceAPITimeout time.Duration `env:"FACE_API_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to ML configuration values.
func (m *MLConfig) Sanitize() {
	if m.OCRCommand == "" {
		m.OCRCommand = "tesseract"
	}
	if m.OCRLanguages == "" {
		m.OCRLanguages = "eng+vie"
	}
	if m.OCRTimeout <= 0 {
		m.OCRTimeout = 30 * time.Second
	}
	if m.FaceAPITimeout <= 0 {
		m.FaceAPITimeout = 10 * time.Second
	}
}
