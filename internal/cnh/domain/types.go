package domain

import "time"

// NotFoundText is what a missing field renders as in exports and the UI.
const NotFoundText = "Não encontrado"

// Field identifies one of the fixed CNH fields the extractor looks for
type Field string

const (
	FieldName               Field = "nome"
	FieldCPF                Field = "cpf"
	FieldBirthDate          Field = "data_nascimento"
	FieldValidityDate       Field = "validade"
	FieldParentage          Field = "filiacao"
	FieldRegistrationNumber Field = "registro"
	FieldCategory           Field = "categoria"
)

// AllFields lists every field in export order.
var AllFields = []Field{
	FieldName,
	FieldCPF,
	FieldBirthDate,
	FieldValidityDate,
	FieldParentage,
	FieldRegistrationNumber,
	FieldCategory,
}

// Valid reports whether f is one of AllFields
func (f Field) Valid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// BoundingBox is the rectangle a token occupies on the page.
// Units depend on the producer: pixels for OCR, PDF points for the text layer.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box
func (b BoundingBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

// Union returns the smallest box containing both b and o
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Token is a single recognized text unit in reading order
type Token struct {
	Text       string       `json:"text" validate:"max=512"`
	Box        *BoundingBox `json:"box,omitempty"`
	Confidence *float64     `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Index      int          `json:"index" validate:"gte=0"`
}

// FieldValue is the outcome for a single field. Found=false means the
// extractor could not locate the field; Value is then empty and String
// returns NotFoundText.
type FieldValue struct {
	Field        Field   `json:"field"`
	Value        string  `json:"value,omitempty"`
	Found        bool    `json:"found"`
	Confidence   float64 `json:"confidence,omitempty"`
	TokenIndexes []int   `json:"token_indexes,omitempty"`
}

// String returns the value or the not-found marker
func (v FieldValue) String() string {
	if !v.Found {
		return NotFoundText
	}
	return v.Value
}

// ExtractionResult holds one value per field, always in AllFields order
type ExtractionResult struct {
	Fields           []FieldValue `json:"fields"`
	Warnings         []string     `json:"warnings,omitempty"`
	Source           string       `json:"source,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
}

// NewExtractionResult returns a result where every field is not found
func NewExtractionResult() *ExtractionResult {
	fields := make([]FieldValue, len(AllFields))
	for i, f := range AllFields {
		fields[i] = FieldValue{Field: f}
	}
	return &ExtractionResult{Fields: fields}
}

// Get returns the value for a field
func (r *ExtractionResult) Get(f Field) FieldValue {
	for _, v := range r.Fields {
		if v.Field == f {
			return v
		}
	}
	return FieldValue{Field: f}
}

// Set stores a found value for a field
func (r *ExtractionResult) Set(v FieldValue) {
	v.Found = true
	for i := range r.Fields {
		if r.Fields[i].Field == v.Field {
			r.Fields[i] = v
			return
		}
	}
}

// FoundFields returns the names of the fields that were found
func (r *ExtractionResult) FoundFields() []string {
	var out []string
	for _, v := range r.Fields {
		if v.Found {
			out = append(out, string(v.Field))
		}
	}
	return out
}

// ExtractionStatus represents the processing state of an extraction job
type ExtractionStatus string

const (
	StatusPending    ExtractionStatus = "pending"
	StatusProcessing ExtractionStatus = "processing"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
)

// ExtractionJob represents one uploaded document moving through the pipeline
type ExtractionJob struct {
	JobID     string            `json:"job_id"`
	Status    ExtractionStatus  `json:"status"`
	Result    *ExtractionResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ProcessingAuditEntry records a document processing event for LGPD accountability.
// It never stores extracted values.
type ProcessingAuditEntry struct {
	ID                   string    `db:"id"`
	JobID                string    `db:"job_id"`
	DocumentFingerprint  string    `db:"document_fingerprint"`
	Producer             string    `db:"producer"`
	ConsentTimestamp     time.Time `db:"consent_timestamp"`
	ConsentGivenBy       string    `db:"consent_given_by"`
	FieldsExtracted      []string  `db:"fields_extracted"`
	ProcessingDurationMs int64     `db:"processing_duration_ms"`
	DocumentDeletedAt    time.Time `db:"document_deleted_at"`
	CreatedAt            time.Time `db:"created_at"`
}
