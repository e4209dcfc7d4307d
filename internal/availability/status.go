package availability

import "github.com/angelmondragon/threadline-backend/pkg/enums"

// DeriveStatus is the automatic status for a variant that is not disabled.
func DeriveStatus(stock int) enums.VariantStatus {
	if stock > 0 {
		return enums.VariantStatusAvailable
	}
	return enums.VariantStatusOutOfStock
}

// AggregateStatus folds variant statuses into the product's display status:
// available wins over out_of_stock, which wins over disabled. A product with
// no variants reads as disabled.
func AggregateStatus(statuses []enums.VariantStatus) enums.VariantStatus {
	sawOutOfStock := false
	for _, status := range statuses {
		switch status {
		case enums.VariantStatusAvailable:
			return enums.VariantStatusAvailable
		case enums.VariantStatusOutOfStock:
			sawOutOfStock = true
		}
	}
	if sawOutOfStock {
		return enums.VariantStatusOutOfStock
	}
	return enums.VariantStatusDisabled
}
