package domain

import "time"

type Offer struct {
	OfferID             string    `json:"id" dynamodbav:"offer_id"`
	Title               string    `json:"title" dynamodbav:"title"`
	Provider            string    `json:"provider" dynamodbav:"provider"`
	Discount            string    `json:"discount" dynamodbav:"discount"`
	Description         string    `json:"description" dynamodbav:"description"`
	EligibilityCriteria string    `json:"eligibility_criteria" dynamodbav:"eligibility_criteria"`
	IsActive            bool      `json:"is_active" dynamodbav:"is_active"`
	CreatedAt           time.Time `json:"created" dynamodbav:"created_at"`
}

type CreateOfferRequest struct {
	Title               string `json:"title" validate:"required,max=200"`
	Provider            string `json:"provider" validate:"required"`
	Discount            string `json:"discount"`
	Description         string `json:"description"`
	EligibilityCriteria string `json:"eligibility_criteria"`
	// Audience lists the users notified about the offer; empty means every
	// enabled employee.
	Audience []string `json:"audience"`
}
