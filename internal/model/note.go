package model

import "time"

// Note is the document managed by the example notes API.
// Field names are identical in BSON and JSON so repository queries address
// the same keys on every backend; only the identifier differs (_id / id).
type Note struct {
	ID        string    `bson:"_id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Content   string    `bson:"content,omitempty" json:"content,omitempty"`
	Owner     string    `bson:"owner,omitempty" json:"owner,omitempty"`
	Tags      []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (n *Note) GetID() string   { return n.ID }
func (n *Note) SetID(id string) { n.ID = id }

// NotePatch is the partial update accepted by PATCH /notes/:id.
// Empty fields are left untouched.
type NotePatch struct {
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content,omitempty"`
	Owner   string   `json:"owner,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}
