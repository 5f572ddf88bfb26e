package position

// Clone returns a disposable copy of r with its own editor. The copy shares
// no memory with r, so applying a hypothetical fill to it leaves r intact.
func (r *Record) Clone() (*Record, *Editor) {
	c := *r
	c.emergencyOrders = r.EmergencyOrders()
	c.editorIssued = true
	return &c, &Editor{r: &c}
}
