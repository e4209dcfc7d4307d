package models

// All lists every model in dependency order for AutoMigrate.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartHold{},
		&Order{},
		&OrderLine{},
		&OrderStatusEvent{},
		&PaymentIntent{},
		&PaymentRecord{},
		&OutboxEvent{},
	}
}
