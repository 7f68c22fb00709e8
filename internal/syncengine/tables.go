package syncengine

func text(names ...string) []Column    { return cols(Text, names) }
func integer(names ...string) []Column { return cols(Int, names) }
func num(names ...string) []Column     { return cols(Num, names) }
func flag(names ...string) []Column    { return cols(Bool, names) }

func cols(kind Kind, names []string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, Kind: kind}
	}
	return out
}

func columns(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// POSTables are the tables a FULLPOS installation replicates, parents first.
// app_config and printer_settings stay local to each device.
var POSTables = []Table{
	{Name: "clients", Columns: columns(
		text("nombre", "telefono", "direccion", "rnc", "cedula"),
		flag("is_active", "has_credit"),
		integer("deleted_at_ms", "created_at_ms", "updated_at_ms"),
	)},
	{Name: "categories", Columns: columns(
		text("name"),
		flag("is_active"),
		integer("deleted_at_ms", "created_at_ms", "updated_at_ms"),
	)},
	{Name: "suppliers", Columns: columns(
		text("name", "phone", "note"),
		flag("is_active"),
		integer("deleted_at_ms", "created_at_ms", "updated_at_ms"),
	)},
	{Name: "products", Columns: columns(
		text("code", "name", "image_path", "category_id", "supplier_id"),
		num("purchase_price", "sale_price", "stock", "stock_min"),
		flag("is_active"),
		integer("deleted_at_ms", "created_at_ms", "updated_at_ms"),
	)},
	{Name: "stock_movements", Columns: columns(
		text("product_id", "type"),
		num("quantity"),
		text("note", "user_id"),
		integer("created_at_ms"),
	)},
	{Name: "compras_ordenes", Columns: columns(
		text("supplier_id", "status"),
		num("subtotal", "tax_rate", "tax_amount", "total"),
		flag("is_auto"),
		text("notes"),
		integer("created_at_ms", "updated_at_ms", "received_at_ms", "purchase_date_ms"),
	)},
	{Name: "compras_detalle", Columns: columns(
		text("order_id", "product_id"),
		num("qty", "unit_cost", "total_line"),
		integer("created_at_ms"),
	)},
	{Name: "business_info", Columns: columns(
		text("name", "phone", "address", "rnc", "slogan"),
		integer("updated_at_ms"),
	)},
	{Name: "app_settings", Columns: columns(
		flag("itbis_enabled_default"),
		num("itbis_rate"),
		text("ticket_size"),
		integer("updated_at_ms"),
	)},
	{Name: "ncf_books", Columns: columns(
		text("type", "series"),
		integer("from_n", "to_n", "next_n"),
		flag("is_active"),
		integer("expires_at_ms"),
		text("note"),
		integer("created_at_ms", "updated_at_ms", "deleted_at_ms"),
	)},
	{Name: "customers_ncf_usage", Columns: columns(
		text("sale_id", "ncf_book_id", "ncf_full"),
		integer("created_at_ms"),
	)},
	{Name: "users", Columns: columns(
		text("username", "pin", "role"),
		flag("is_active"),
		integer("created_at_ms", "updated_at_ms", "deleted_at_ms"),
		text("display_name", "permissions", "password_hash"),
	)},
	{Name: "cash_sessions", Columns: columns(
		text("opened_by_user_id", "user_name"),
		integer("opened_at_ms"),
		num("initial_amount", "closing_amount", "expected_cash", "difference"),
		integer("closed_at_ms"),
		text("closed_by_user_id", "note", "status"),
	)},
	{Name: "cash_movements", Columns: columns(
		text("session_id", "type"),
		num("amount"),
		text("note"),
		integer("created_at_ms"),
		text("reason", "user_id"),
	)},
	{Name: "sales", Columns: columns(
		text("local_code", "kind", "status", "customer_id",
			"customer_name_snapshot", "customer_phone_snapshot", "customer_rnc_snapshot"),
		flag("itbis_enabled"),
		num("itbis_rate", "discount_total", "subtotal", "itbis_amount", "total"),
		text("payment_method"),
		num("paid_amount", "change_amount"),
		flag("fiscal_enabled"),
		text("ncf_full", "ncf_type", "session_id", "cash_session_id"),
		integer("created_at_ms", "updated_at_ms", "deleted_at_ms"),
	)},
	{Name: "sale_items", Columns: columns(
		text("sale_id", "product_id", "product_code_snapshot", "product_name_snapshot"),
		num("qty", "unit_price", "purchase_price_snapshot", "discount_line", "total_line"),
		integer("created_at_ms"),
	)},
	{Name: "returns", Columns: columns(
		text("original_sale_id", "return_sale_id", "note"),
		integer("created_at_ms"),
	)},
	{Name: "return_items", Columns: columns(
		text("return_id", "sale_item_id", "product_id", "description"),
		num("qty", "price", "total"),
	)},
	{Name: "credit_payments", Columns: columns(
		text("sale_id", "client_id"),
		num("amount"),
		text("method", "note"),
		integer("created_at_ms"),
		text("user_id"),
	)},
	{Name: "loans", Columns: columns(
		text("client_id", "type"),
		num("principal", "interest_rate"),
		text("interest_mode", "frequency"),
		integer("installments_count", "start_date_ms"),
		num("total_due", "balance", "late_fee"),
		text("status", "note"),
		integer("created_at_ms", "updated_at_ms", "deleted_at_ms"),
	)},
	{Name: "loan_collaterals", Columns: columns(
		text("loan_id", "description"),
		num("estimated_value"),
		text("serial", "condition"),
	)},
	{Name: "loan_installments", Columns: columns(
		text("loan_id"),
		integer("number", "due_date_ms"),
		num("amount_due", "amount_paid"),
		text("status"),
	)},
	{Name: "loan_payments", Columns: columns(
		text("loan_id"),
		integer("paid_at_ms"),
		num("amount"),
		text("method", "note"),
	)},
	{Name: "pos_tickets", Columns: columns(
		text("ticket_name", "user_id", "client_id"),
		flag("itbis_enabled"),
		num("itbis_rate", "discount_total"),
		integer("created_at_ms", "updated_at_ms"),
	)},
	{Name: "pos_ticket_items", Columns: columns(
		text("ticket_id", "product_id", "product_code_snapshot", "product_name_snapshot", "description"),
		num("qty", "price", "cost", "discount_line", "total_line"),
	)},
	{Name: "quotes", Columns: columns(
		text("client_id", "user_id", "ticket_name"),
		num("subtotal"),
		flag("itbis_enabled"),
		num("itbis_rate", "itbis_amount", "discount_total", "total"),
		text("status", "notes"),
		integer("created_at_ms", "updated_at_ms"),
	)},
	{Name: "quote_items", Columns: columns(
		text("quote_id", "product_id", "product_code_snapshot", "product_name_snapshot", "description"),
		num("qty", "unit_price", "price", "cost", "discount_line", "total_line"),
	)},
}

// DefaultRegistry returns the registry of POSTables.
func DefaultRegistry() *Registry {
	return MustRegistry(POSTables)
}
