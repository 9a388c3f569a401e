package domain

// Client is the customer organisation a ticket belongs to.
type Client struct {
	ID          string
	CompanyID   string
	Name        string
	SLAPolicyID *string
}
