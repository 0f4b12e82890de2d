package dynamo

// DynamoDB attribute names used in update and filter expressions across repos.
const (
	fieldEnable    = "enable"
	fieldIsRead    = "is_read"
	fieldIsActive  = "is_active"
	fieldPushToken = "push_token"
	fieldPlatform  = "platform"
	fieldUserID    = "user_id"
	fieldUpdatedAt = "updated_at"
)
