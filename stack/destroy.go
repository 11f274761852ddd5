package stack

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/rahulwagh/aistack/fetcher"
)

// destroy deletes the remote object behind r. Objects that are already gone
// count as deleted.
func (s *Stack) destroy(ctx context.Context, r fetcher.StandardizedResource) error {
	var op func() error

	switch r.Service {
	case fetcher.KindMetricAlarm:
		op = func() error {
			_, err := s.clients.Alarms.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{AlarmNames: []string{r.ID}})
			return err
		}
	case fetcher.KindSecret:
		op = func() error {
			in := &secretsmanager.DeleteSecretInput{SecretId: aws.String(r.ID)}
			if s.cfg.Secret.ForceDelete {
				in.ForceDeleteWithoutRecovery = aws.Bool(true)
			}
			_, err := s.clients.Secrets.DeleteSecret(ctx, in)
			return err
		}
	case fetcher.KindGatewayAttachment:
		vpcID := r.Attr(fetcher.AttrVPCID)
		if vpcID == "" {
			return fmt.Errorf("attachment of %s has no %s attribute", r.ID, fetcher.AttrVPCID)
		}
		op = func() error {
			_, err := s.clients.EC2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: aws.String(r.ID),
				VpcId:             aws.String(vpcID),
			})
			return err
		}
	case fetcher.KindInternetGateway:
		op = func() error {
			_, err := s.clients.EC2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: aws.String(r.ID)})
			return err
		}
	case fetcher.KindEndpointRoute:
		endpointID := r.Attr(fetcher.AttrEndpointID)
		if endpointID == "" {
			return fmt.Errorf("route %s has no %s attribute", r.ID, fetcher.AttrEndpointID)
		}
		op = func() error {
			_, err := s.clients.EC2.ModifyVpcEndpoint(ctx, &ec2.ModifyVpcEndpointInput{
				VpcEndpointId:       aws.String(endpointID),
				RemoveRouteTableIds: []string{r.ID},
			})
			return err
		}
	case fetcher.KindEndpointNotification:
		op = func() error {
			res, err := s.clients.EC2.DeleteVpcEndpointConnectionNotifications(ctx, &ec2.DeleteVpcEndpointConnectionNotificationsInput{
				ConnectionNotificationIds: []string{r.ID},
			})
			if err != nil {
				return err
			}
			return unsuccessful(res.Unsuccessful)
		}
	case fetcher.KindVPCEndpoint:
		op = func() error {
			res, err := s.clients.EC2.DeleteVpcEndpoints(ctx, &ec2.DeleteVpcEndpointsInput{VpcEndpointIds: []string{r.ID}})
			if err != nil {
				return err
			}
			return unsuccessful(res.Unsuccessful)
		}
	case fetcher.KindBucket:
		op = func() error {
			_, err := s.clients.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(r.ID)})
			return err
		}
	case fetcher.KindVPC:
		op = func() error {
			_, err := s.clients.EC2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(r.ID)})
			return err
		}
	default:
		return fmt.Errorf("unknown resource kind %q", r.Service)
	}

	// Deletes of dependents are asynchronous; the parent keeps refusing until they finish.
	err := s.retry(ctx, "delete "+r.Service, isDependencyPending, op)
	if isGone(err) {
		s.log.Debug().Str("kind", r.Service).Str("id", r.ID).Msg("already gone")
		return nil
	}
	return err
}

// itemError carries the per-item failure of a batch delete.
type itemError struct {
	code, message, id string
}

func (e *itemError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.id, e.message, e.code)
}

func (e *itemError) ErrorCode() string    { return e.code }
func (e *itemError) ErrorMessage() string { return e.message }
func (e *itemError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}

func unsuccessful(items []ec2types.UnsuccessfulItem) error {
	for _, item := range items {
		if item.Error == nil {
			continue
		}
		return &itemError{
			code:    aws.ToString(item.Error.Code),
			message: aws.ToString(item.Error.Message),
			id:      aws.ToString(item.ResourceId),
		}
	}
	return nil
}
