package enums

// VariantStatus is the display availability of a product variant.
type VariantStatus string

const (
	VariantStatusAvailable  VariantStatus = "available"
	VariantStatusOutOfStock VariantStatus = "out_of_stock"
	VariantStatusDisabled   VariantStatus = "disabled"
)

var variantStatuses = newClosedSet("variant status",
	VariantStatusAvailable, VariantStatusOutOfStock, VariantStatusDisabled)

func (v VariantStatus) String() string { return string(v) }
func (v VariantStatus) IsValid() bool  { return variantStatuses.contains(v) }

// IsManualTarget reports whether an admin may set the status directly.
// out_of_stock is only ever derived from stock.
func (v VariantStatus) IsManualTarget() bool {
	return v == VariantStatusAvailable || v == VariantStatusDisabled
}

func ParseVariantStatus(value string) (VariantStatus, error) { return variantStatuses.parse(value) }
