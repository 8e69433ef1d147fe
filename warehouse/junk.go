package warehouse

// JunkKey is the natural key of the junk dimension: the combination of
// event source type, measurement unit, and care-unit code. Unit and care
// unit are frequently absent; two absent values compare equal, an absent
// and a present value do not.
type JunkKey struct {
	SourceType string
	ValueUOM   *string
	CareUnit   *string
}

// Equal is null-safe equality over all three fields.
func (k JunkKey) Equal(o JunkKey) bool {
	return k.SourceType == o.SourceType &&
		optEqual(k.ValueUOM, o.ValueUOM) &&
		optEqual(k.CareUnit, o.CareUnit)
}

// CacheKey renders the key into a collision-free map key. The 0x1f
// separator cannot occur in source codes, and absent fields render
// distinctly from empty strings.
func (k JunkKey) CacheKey() string {
	const sep = "\x1f"
	s := k.SourceType + sep
	if k.ValueUOM != nil {
		s += "u" + *k.ValueUOM
	}
	s += sep
	if k.CareUnit != nil {
		s += "c" + *k.CareUnit
	}
	return s
}

func optEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
