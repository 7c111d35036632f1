package domain

// Document describe un archivo gestionado por el servicio de recuperación.
type Document struct {
	Filename     string  `json:"filename"`
	Size         int64   `json:"size"`
	ModifiedTime float64 `json:"modified_time"`
	Indexed      bool    `json:"indexed,omitempty"`
}
