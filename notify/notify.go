// Package notify delivers leave request decisions to employees.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

var ErrNoRecipient = errors.New("employee has no email address")

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// LogNotifier writes decisions to the log. Used when no mail transport is
// configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyDecision(_ context.Context, r leave.Request, emp leave.Employee) error {
	n.log.Info().
		Str("request_id", r.ID).
		Str("employee_id", string(emp.ID)).
		Str("status", string(r.Status)).
		Str("hours", r.Hours.StringFixed(2)).
		Msg("leave request decided")
	return nil
}

// =============================================================================
// SES NOTIFIER
// =============================================================================

// SESAPI is the part of the SES client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier emails the employee through Amazon SES.
type SESNotifier struct {
	client SESAPI
	sender string
	cb     *gobreaker.CircuitBreaker
}

func NewSESNotifier(client SESAPI, sender string) *SESNotifier {
	settings := gobreaker.Settings{
		Name:        "ses",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}
	return &SESNotifier{client: client, sender: sender, cb: gobreaker.NewCircuitBreaker(settings)}
}

// NewSESClient builds an SES client. A non-empty endpoint routes calls to
// LocalStack with static test credentials.
func NewSESClient(ctx context.Context, region, endpoint string) (*ses.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return ses.NewFromConfig(cfg, func(o *ses.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (n *SESNotifier) NotifyDecision(ctx context.Context, r leave.Request, emp leave.Employee) error {
	if emp.Email == "" {
		return fmt.Errorf("%w: %s", ErrNoRecipient, emp.ID)
	}
	subject, body := Message(r, emp)
	input := &ses.SendEmailInput{
		Source: aws.String(n.sender),
		Destination: &types.Destination{
			ToAddresses: []string{emp.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}
	_, err := n.cb.Execute(func() (interface{}, error) {
		return n.client.SendEmail(ctx, input)
	})
	return err
}

// Message renders the subject and plain-text body for a decision.
func Message(r leave.Request, emp leave.Employee) (subject, body string) {
	subject = fmt.Sprintf("Your leave request was %s", r.Status)
	body = fmt.Sprintf("Hello %s,\n\nYour leave request from %s to %s (%s hours) was %s.",
		emp.Name,
		r.Start.Format("2006-01-02 15:04"),
		r.End.Format("2006-01-02 15:04"),
		r.Hours.StringFixed(2),
		r.Status,
	)
	if r.Comment != "" {
		body += "\n\nComment: " + r.Comment
	}
	return subject, body
}

var (
	_ engine.Notifier = (*LogNotifier)(nil)
	_ engine.Notifier = (*SESNotifier)(nil)
)
