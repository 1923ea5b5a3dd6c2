package models

import "time"

// Paraphrase is one entry of a user's rewrite history.
type Paraphrase struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	OriginalText    string    `db:"original_text" json:"original_text"`
	ParaphrasedText string    `db:"paraphrased_text" json:"paraphrased_text"`
	Tone            *string   `db:"tone" json:"tone,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
	Seq             int64     `db:"seq" json:"-"`
}

// ToneOrEmpty dereferences Tone.
func (p Paraphrase) ToneOrEmpty() string {
	if p.Tone == nil {
		return ""
	}
	return *p.Tone
}
