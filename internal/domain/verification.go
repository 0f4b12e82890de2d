package domain

const VerificationOTP = "otp"

// UserVerification stores one-time login codes.
// PK: user_id, SK: type. ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type UserVerification struct {
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	Type      string `json:"type" dynamodbav:"type"`
	Code      string `json:"code" dynamodbav:"code"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}
