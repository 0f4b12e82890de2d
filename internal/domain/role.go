package domain

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)
