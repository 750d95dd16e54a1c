package models

// ImageAsset is an uploaded image after it has been decoded and stored.
type ImageAsset struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
	Path     string `json:"-"`
	// DataURI is the inline data:<mime>;base64,<payload> form sent to the model.
	DataURI string `json:"-"`
	// URL is where the stored file is publicly served.
	URL string `json:"url"`
}
