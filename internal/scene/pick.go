// internal/scene/pick.go - Picking results
package scene

// PrimitiveRef is the primitive a pick landed on, if any
type PrimitiveRef struct {
	ID *string `json:"id,omitempty"`
}

// Pick is the result of picking a screen position. Every level is optional.
type Pick struct {
	ID        *string       `json:"id,omitempty"`
	Primitive *PrimitiveRef `json:"primitive,omitempty"`
}

// TargetID resolves the picked identifier: direct id first, then the primitive's id
func (p *Pick) TargetID() (string, bool) {
	if p == nil {
		return "", false
	}
	if p.ID != nil && *p.ID != "" {
		return *p.ID, true
	}
	if p.Primitive != nil && p.Primitive.ID != nil && *p.Primitive.ID != "" {
		return *p.Primitive.ID, true
	}
	return "", false
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
