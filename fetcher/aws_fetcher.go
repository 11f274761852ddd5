// fetcher/aws_fetcher.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// EC2Lister is the part of the EC2 API the inventory needs.
type EC2Lister interface {
	ec2.DescribeVpcsAPIClient
	ec2.DescribeInternetGatewaysAPIClient
	ec2.DescribeVpcEndpointsAPIClient
	ec2.DescribeVpcEndpointConnectionNotificationsAPIClient
}

// BucketReader checks a single bucket and reads its tags.
type BucketReader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

// AlarmLister finds alarms and reads their tags.
type AlarmLister interface {
	cloudwatch.DescribeAlarmsAPIClient
	ListTagsForResource(ctx context.Context, params *cloudwatch.ListTagsForResourceInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListTagsForResourceOutput, error)
}

// Source lists the live resources of one stack.
type Source struct {
	EC2     EC2Lister
	S3      BucketReader
	Secrets secretsmanager.ListSecretsAPIClient
	Alarms  AlarmLister
	Region  string
	Log     zerolog.Logger
}

// Selector names the stack and the resources that cannot be found by tag.
type Selector struct {
	Stack  string
	Bucket string
	Alarm  string
}

// FetchStack returns every live resource of the stack, in creation order.
func (s Source) FetchStack(ctx context.Context, sel Selector) ([]StandardizedResource, error) {
	var all []StandardizedResource

	vpcs, err := s.FetchVPCs(ctx, sel.Stack)
	if err != nil {
		return nil, err
	}
	all = append(all, vpcs...)

	bucket, err := s.FetchBucket(ctx, sel.Stack, sel.Bucket)
	if err != nil {
		return nil, err
	}
	all = append(all, bucket...)

	gateways, err := s.FetchInternetGateways(ctx, sel.Stack)
	if err != nil {
		return nil, err
	}
	all = append(all, gateways...)

	endpoints, err := s.FetchVPCEndpoints(ctx, sel.Stack)
	if err != nil {
		return nil, err
	}
	all = append(all, endpoints...)

	secrets, err := s.FetchSecrets(ctx, sel.Stack)
	if err != nil {
		return nil, err
	}
	all = append(all, secrets...)

	alarms, err := s.FetchAlarms(ctx, sel.Stack, sel.Alarm)
	if err != nil {
		return nil, err
	}
	all = append(all, alarms...)

	s.Log.Info().Str("stack", sel.Stack).Int("resources", len(all)).Msg("inventory complete")
	return all, nil
}

func stackFilter(stack string) []ec2types.Filter {
	return []ec2types.Filter{{
		Name:   aws.String("tag:" + StackTagKey),
		Values: []string{stack},
	}}
}

// FetchVPCs lists the VPCs tagged with the stack name.
func (s Source) FetchVPCs(ctx context.Context, stack string) ([]StandardizedResource, error) {
	var resources []StandardizedResource

	paginator := ec2.NewDescribeVpcsPaginator(s.EC2, &ec2.DescribeVpcsInput{Filters: stackFilter(stack)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get a page of VPCs: %w", err)
		}
		for _, vpc := range page.Vpcs {
			resources = append(resources, NewAWSResource(stack, KindVPC, s.Region, aws.ToString(vpc.VpcId), nameTag(vpc.Tags), map[string]string{
				AttrCIDR:  aws.ToString(vpc.CidrBlock),
				AttrState: string(vpc.State),
			}))
		}
	}
	s.Log.Debug().Int("count", len(resources)).Msg("fetched VPCs")
	return resources, nil
}

// FetchInternetGateways lists tagged gateways and one attachment entry per attached VPC.
func (s Source) FetchInternetGateways(ctx context.Context, stack string) ([]StandardizedResource, error) {
	var resources []StandardizedResource

	paginator := ec2.NewDescribeInternetGatewaysPaginator(s.EC2, &ec2.DescribeInternetGatewaysInput{Filters: stackFilter(stack)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get a page of internet gateways: %w", err)
		}
		for _, igw := range page.InternetGateways {
			id := aws.ToString(igw.InternetGatewayId)
			resources = append(resources, NewAWSResource(stack, KindInternetGateway, s.Region, id, nameTag(igw.Tags), nil))
			for _, att := range igw.Attachments {
				resources = append(resources, NewAWSResource(stack, KindGatewayAttachment, s.Region, id, "", map[string]string{
					AttrVPCID: aws.ToString(att.VpcId),
					AttrState: string(att.State),
				}))
			}
		}
	}
	s.Log.Debug().Int("count", len(resources)).Msg("fetched internet gateways")
	return resources, nil
}

// FetchVPCEndpoints lists tagged endpoints with their notifications and route tables.
func (s Source) FetchVPCEndpoints(ctx context.Context, stack string) ([]StandardizedResource, error) {
	var resources []StandardizedResource

	paginator := ec2.NewDescribeVpcEndpointsPaginator(s.EC2, &ec2.DescribeVpcEndpointsInput{Filters: stackFilter(stack)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get a page of VPC endpoints: %w", err)
		}
		for _, ep := range page.VpcEndpoints {
			id := aws.ToString(ep.VpcEndpointId)
			resources = append(resources, NewAWSResource(stack, KindVPCEndpoint, s.Region, id, aws.ToString(ep.ServiceName), map[string]string{
				AttrVPCID: aws.ToString(ep.VpcId),
				AttrState: string(ep.State),
			}))

			notifications, err := s.fetchNotifications(ctx, stack, id)
			if err != nil {
				return nil, err
			}
			resources = append(resources, notifications...)

			for _, rt := range ep.RouteTableIds {
				resources = append(resources, NewAWSResource(stack, KindEndpointRoute, s.Region, rt, "", map[string]string{
					AttrEndpointID: id,
					AttrVPCID:      aws.ToString(ep.VpcId),
				}))
			}
		}
	}
	s.Log.Debug().Int("count", len(resources)).Msg("fetched VPC endpoints")
	return resources, nil
}

func (s Source) fetchNotifications(ctx context.Context, stack, endpointID string) ([]StandardizedResource, error) {
	var resources []StandardizedResource

	paginator := ec2.NewDescribeVpcEndpointConnectionNotificationsPaginator(s.EC2, &ec2.DescribeVpcEndpointConnectionNotificationsInput{
		Filters: []ec2types.Filter{{Name: aws.String("vpc-endpoint-id"), Values: []string{endpointID}}},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list connection notifications for %s: %w", endpointID, err)
		}
		for _, n := range page.ConnectionNotificationSet {
			resources = append(resources, NewAWSResource(stack, KindEndpointNotification, s.Region, aws.ToString(n.ConnectionNotificationId), "", map[string]string{
				AttrEndpointID: endpointID,
				AttrARN:        aws.ToString(n.ConnectionNotificationArn),
				AttrState:      string(n.ConnectionNotificationState),
			}))
		}
	}
	return resources, nil
}

// FetchBucket reports the configured bucket if it exists and carries the stack
// tag. Buckets owned by someone else, or never tagged by us, are skipped.
func (s Source) FetchBucket(ctx context.Context, stack, bucket string) ([]StandardizedResource, error) {
	if bucket == "" {
		return nil, nil
	}
	log := s.Log.With().Str("bucket", bucket).Logger()

	out, err := s.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		switch {
		case isBucketMissing(err):
			log.Debug().Msg("bucket not found")
			return nil, nil
		case isAccessDenied(err):
			log.Warn().Msg("bucket belongs to another account; skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	tagging, err := s.S3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(bucket)})
	if err != nil {
		if errorCode(err) == "NoSuchTagSet" || isAccessDenied(err) {
			log.Warn().Msg("bucket has no stack tag; skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tags of bucket %s: %w", bucket, err)
	}
	if bucketTag(tagging.TagSet, StackTagKey) != stack {
		log.Warn().Msg("bucket is not tagged for this stack; skipping")
		return nil, nil
	}

	region := s.Region
	if out.BucketRegion != nil {
		region = *out.BucketRegion
	}
	return []StandardizedResource{NewAWSResource(stack, KindBucket, region, bucket, bucket, nil)}, nil
}

func bucketTag(tags []s3types.Tag, key string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == key {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isBucketMissing(err error) bool {
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	switch errorCode(err) {
	case "NotFound", "NoSuchBucket", "404":
		return true
	}
	return false
}

// isAccessDenied matches 403 answers. HeadBucket has no body, so only the status says so.
func isAccessDenied(err error) bool {
	switch errorCode(err) {
	case "AccessDenied", "Forbidden", "403":
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusForbidden
}

// FetchSecrets lists the secrets tagged with the stack name.
func (s Source) FetchSecrets(ctx context.Context, stack string) ([]StandardizedResource, error) {
	var resources []StandardizedResource

	paginator := secretsmanager.NewListSecretsPaginator(s.Secrets, &secretsmanager.ListSecretsInput{
		Filters: []smtypes.Filter{
			{Key: smtypes.FilterNameStringTypeTagKey, Values: []string{StackTagKey}},
			{Key: smtypes.FilterNameStringTypeTagValue, Values: []string{stack}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get a page of secrets: %w", err)
		}
		for _, entry := range page.SecretList {
			// tag-key and tag-value filters match independently; confirm the pair.
			if secretTag(entry.Tags, StackTagKey) != stack {
				continue
			}
			resources = append(resources, NewAWSResource(stack, KindSecret, s.Region, aws.ToString(entry.ARN), aws.ToString(entry.Name), nil))
		}
	}
	s.Log.Debug().Int("count", len(resources)).Msg("fetched secrets")
	return resources, nil
}

func secretTag(tags []smtypes.Tag, key string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == key {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

// FetchAlarms reports the configured alarm if it exists and carries the stack tag.
func (s Source) FetchAlarms(ctx context.Context, stack, alarm string) ([]StandardizedResource, error) {
	if alarm == "" {
		return nil, nil
	}
	var resources []StandardizedResource

	paginator := cloudwatch.NewDescribeAlarmsPaginator(s.Alarms, &cloudwatch.DescribeAlarmsInput{AlarmNames: []string{alarm}})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get a page of alarms: %w", err)
		}
		for _, a := range page.MetricAlarms {
			tags, err := s.Alarms.ListTagsForResource(ctx, &cloudwatch.ListTagsForResourceInput{ResourceARN: a.AlarmArn})
			if err != nil {
				return nil, fmt.Errorf("failed to read tags of alarm %s: %w", aws.ToString(a.AlarmName), err)
			}
			if alarmTag(tags.Tags, StackTagKey) != stack {
				s.Log.Warn().Str("alarm", aws.ToString(a.AlarmName)).Msg("alarm is not tagged for this stack; skipping")
				continue
			}
			resources = append(resources, NewAWSResource(stack, KindMetricAlarm, s.Region, aws.ToString(a.AlarmName), "", map[string]string{
				AttrARN:   aws.ToString(a.AlarmArn),
				AttrState: string(a.StateValue),
			}))
		}
	}
	return resources, nil
}

func alarmTag(tags []cwtypes.Tag, key string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == key {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func nameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
