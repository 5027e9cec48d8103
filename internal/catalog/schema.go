package catalog

import "catalogetl/internal/storage"

// DestinationColumns is the fixed type mapping of the product table.
// Columns it does not list are stored as text.
var DestinationColumns = []storage.ColumnSpec{
	{Name: "asin", Type: storage.TypeString, Length: 50},
	{Name: "product_title", Type: storage.TypeText},
	{Name: "product_price", Type: storage.TypeFloat},
	{Name: "product_original_price", Type: storage.TypeFloat},
	{Name: "product_star_rating", Type: storage.TypeFloat},
	{Name: "product_num_ratings", Type: storage.TypeInteger},
	{Name: "product_num_offers", Type: storage.TypeInteger},
	{Name: "product_minimum_offer_price", Type: storage.TypeFloat},
	{Name: "is_best_seller", Type: storage.TypeBoolean},
	{Name: "is_amazon_choice", Type: storage.TypeBoolean},
	{Name: "is_prime", Type: storage.TypeBoolean},
	{Name: "climate_pledge_friendly", Type: storage.TypeBoolean},
	{Name: "sales_volume", Type: storage.TypeText},
	{Name: "has_variations", Type: storage.TypeBoolean},
	{Name: "product_availability", Type: storage.TypeText},
}
