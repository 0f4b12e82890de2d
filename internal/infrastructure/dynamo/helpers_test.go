package dynamo

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-hr-sync/internal/config"
	"github.com/go-hr-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldPushToken: "arn:endpoint/1"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "push_token"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		fieldUpdatedAt: "2026-03-02T09:00:00Z",
		fieldIsRead:    true,
		fieldEnable:    false,
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "enable", ue1.Names["#f0"])
	assert.Equal(t, "is_read", ue1.Names["#f1"])
	assert.Equal(t, "updated_at", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldIsRead: true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestNotFoundIfConditionFailed(t *testing.T) {
	err := notFoundIfConditionFailed(&types.ConditionalCheckFailedException{}, "notification")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	other := errors.New("throttled")
	assert.Equal(t, other, notFoundIfConditionFailed(other, "notification"))
}

func TestSortNewestFirst(t *testing.T) {
	offers := []domain.Offer{
		{OfferID: "a", CreatedAt: t0(1)},
		{OfferID: "b", CreatedAt: t0(3)},
		{OfferID: "c", CreatedAt: t0(2)},
	}
	sortOffersNewestFirst(offers)
	assert.Equal(t, "b", offers[0].OfferID)
	assert.Equal(t, "c", offers[1].OfferID)
	assert.Equal(t, "a", offers[2].OfferID)
}

func t0(minute int) time.Time {
	return time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC)
}

func TestTableSpecs_CoverEveryTable(t *testing.T) {
	tables := config.DynamoTables{
		Users: "u", Sessions: "s", Devices: "d", Notifications: "n", Offers: "o", UserVerifications: "v",
	}
	specs := tableSpecs(tables)
	names := make([]string, 0, len(specs))
	for _, in := range specs {
		names = append(names, *in.TableName)
		for _, idx := range in.GlobalSecondaryIndexes {
			for _, k := range idx.KeySchema {
				assert.True(t, hasAttr(in.AttributeDefinitions, *k.AttributeName),
					"table %s index %s key %s undefined", *in.TableName, *idx.IndexName, *k.AttributeName)
			}
		}
	}
	assert.ElementsMatch(t, []string{"u", "s", "d", "n", "o", "v"}, names)
}

func hasAttr(defs []types.AttributeDefinition, name string) bool {
	for _, d := range defs {
		if *d.AttributeName == name {
			return true
		}
	}
	return false
}
