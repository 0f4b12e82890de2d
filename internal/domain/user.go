package domain

import "time"

// Profile is the employee view returned with a session.
type Profile struct {
	UserID       string `json:"id"`
	EmployeeCode string `json:"employee_code"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile,omitempty"`
	Designation  string `json:"designation,omitempty"`
	Department   string `json:"department,omitempty"`
}

type User struct {
	UserID       string    `json:"id" dynamodbav:"user_id"`
	EmployeeCode string    `json:"employee_code" dynamodbav:"employee_code"`
	Email        string    `json:"email" dynamodbav:"email"`
	Mobile       string    `json:"mobile" dynamodbav:"mobile"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	Role         string    `json:"role" dynamodbav:"role"`
	FirstName    string    `json:"first_name" dynamodbav:"first_name"`
	LastName     string    `json:"last_name" dynamodbav:"last_name"`
	Designation  string    `json:"designation" dynamodbav:"designation"`
	Department   string    `json:"department" dynamodbav:"department"`
	Enable       bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

func (u *User) Profile() Profile {
	return Profile{
		UserID:       u.UserID,
		EmployeeCode: u.EmployeeCode,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Mobile:       u.Mobile,
		Designation:  u.Designation,
		Department:   u.Department,
	}
}

// Credentials are accepted either as employee code or email plus password.
type Credentials struct {
	Login      string  `json:"login" validate:"required"`
	Password   string  `json:"password" validate:"required"`
	DeviceUUID *string `json:"device_uuid,omitempty"`
}

type OTPRequest struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
}

type OTPLogin struct {
	Mobile     string  `json:"mobile" validate:"required,mobile"`
	OTP        string  `json:"otp" validate:"required,otp"`
	DeviceUUID *string `json:"device_uuid,omitempty"`
}
