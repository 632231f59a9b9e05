// Package activity records the last token issue time of each user from the
// Cognito pre token generation trigger.
package activity

import (
	"context"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/config"
)

// ClaimUpdatedAt is added to the issued tokens.
const ClaimUpdatedAt = "custom:updated_at"

// TimeLayout is ISO-8601 with microseconds and a numeric offset.
const TimeLayout = "2006-01-02T15:04:05.000000-07:00"

// Record is the item written per user.
type Record struct {
	UserID    string `dynamodbav:"user_id"`
	UserName  string `dynamodbav:"user_name"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

type Handler struct {
	db    dynamodbiface.DynamoDBAPI
	table string
	loc   *time.Location
	now   func() time.Time
}

// New creates a handler writing to table. An empty time zone uses UTC.
func New(db dynamodbiface.DynamoDBAPI, table, timeZone string) (*Handler, error) {
	const op = "activity.New"
	if db == nil {
		return nil, awserrors.Configuration(op, "dynamodb client is required")
	}
	if table == "" {
		return nil, awserrors.Configuration(op, "table name is required")
	}

	loc := time.UTC
	if timeZone != "" {
		l, err := time.LoadLocation(timeZone)
		if err != nil {
			return nil, awserrors.Configuration(op, "invalid time zone %q: %v", timeZone, err)
		}
		loc = l
	}

	return &Handler{db: db, table: table, loc: loc, now: time.Now}, nil
}

// NewFromConfig creates a handler using a DynamoDB client built from sess.
func NewFromConfig(sess client.ConfigProvider, cfg config.ActivityConfig) (*Handler, error) {
	return New(dynamodb.New(sess), cfg.TableName, cfg.TimeZone)
}

// Handle stores the activity record and returns the event with the
// updated_at claim added.
func (h *Handler) Handle(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGen) (events.CognitoEventUserPoolsPreTokenGen, error) {
	sub := event.Request.UserAttributes["sub"]
	if sub == "" {
		return event, awserrors.Protocol("activity.Handle", "event for %q has no sub attribute", event.UserName)
	}

	rec := Record{
		UserID:    sub,
		UserName:  event.UserName,
		UpdatedAt: h.now().In(h.loc).Format(TimeLayout),
	}

	item, err := dynamodbattribute.MarshalMap(rec)
	if err != nil {
		return event, awserrors.Protocol("activity.Handle", "marshal record: %v", err)
	}

	_, err = h.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(h.table),
		Item:      item,
	})
	if err != nil {
		slog.Error("Failed to store user activity", "user", event.UserName, "err", err)
		return event, awserrors.Remote("PutItem", err)
	}

	if event.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride == nil {
		event.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride = map[string]string{}
	}
	event.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride[ClaimUpdatedAt] = rec.UpdatedAt

	slog.Info("User activity recorded", "user", event.UserName, "updatedAt", rec.UpdatedAt)
	return event, nil
}
