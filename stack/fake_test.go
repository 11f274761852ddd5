package stack

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/rahulwagh/aistack/config"
	"github.com/rahulwagh/aistack/fetcher"
)

// fakeAWS implements every client interface, records the calls it receives in
// order and fails calls on demand.
type fakeAWS struct {
	calls []string

	// failures maps a call name to the errors returned by its next invocations.
	failures map[string][]error
	// onCall, when set, runs after a call is recorded.
	onCall func(call string)

	connections   []ec2types.VpcEndpointConnection
	endpointState ec2types.State
	noMainTable   bool

	createVpcIn    *ec2.CreateVpcInput
	createBucketIn *s3.CreateBucketInput
	bucketTagIn    *s3.PutBucketTaggingInput
	notifyIn       *ec2.CreateVpcEndpointConnectionNotificationInput
	modifyIn       []*ec2.ModifyVpcEndpointInput
	secretIn       *secretsmanager.CreateSecretInput
	deleteSecretIn *secretsmanager.DeleteSecretInput
	alarmIn        *cloudwatch.PutMetricAlarmInput
	detachIn       *ec2.DetachInternetGatewayInput
}

func newFakeAWS() *fakeAWS {
	return &fakeAWS{failures: map[string][]error{}, endpointState: ec2types.StateAvailable}
}

func (f *fakeAWS) failNext(call string, errs ...error) {
	f.failures[call] = append(f.failures[call], errs...)
}

func (f *fakeAWS) hit(call string) error {
	f.calls = append(f.calls, call)
	if f.onCall != nil {
		f.onCall(call)
	}
	if errs := f.failures[call]; len(errs) > 0 {
		f.failures[call] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeAWS) clients() *Clients {
	return &Clients{EC2: f, S3: f, Secrets: f, Alarms: f, STS: f, IAM: f, Region: "us-east-1"}
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func newTestStack(f *fakeAWS, cfg *config.Config, persisted *[][]fetcher.StandardizedResource) *Stack {
	if cfg == nil {
		cfg = config.Default()
	}
	persist := func(rs []fetcher.StandardizedResource) error {
		if persisted != nil {
			*persisted = append(*persisted, rs)
		}
		return nil
	}
	return New(cfg, f.clients(),
		WithJournal(NewJournal(nil, persist)),
		WithRetry(time.Millisecond, 2*time.Millisecond, 4),
		WithRollbackTimeout(5*time.Second),
	)
}

// EC2

func (f *fakeAWS) CreateVpc(_ context.Context, in *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	f.createVpcIn = in
	if err := f.hit("CreateVpc"); err != nil {
		return nil, err
	}
	return &ec2.CreateVpcOutput{Vpc: &ec2types.Vpc{VpcId: aws.String("vpc-1"), CidrBlock: in.CidrBlock}}, nil
}

func (f *fakeAWS) DeleteVpc(context.Context, *ec2.DeleteVpcInput, ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	if err := f.hit("DeleteVpc"); err != nil {
		return nil, err
	}
	return &ec2.DeleteVpcOutput{}, nil
}

func (f *fakeAWS) DescribeVpcs(context.Context, *ec2.DescribeVpcsInput, ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	return &ec2.DescribeVpcsOutput{}, f.hit("DescribeVpcs")
}

func (f *fakeAWS) CreateInternetGateway(context.Context, *ec2.CreateInternetGatewayInput, ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	if err := f.hit("CreateInternetGateway"); err != nil {
		return nil, err
	}
	return &ec2.CreateInternetGatewayOutput{InternetGateway: &ec2types.InternetGateway{InternetGatewayId: aws.String("igw-1")}}, nil
}

func (f *fakeAWS) AttachInternetGateway(context.Context, *ec2.AttachInternetGatewayInput, ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	if err := f.hit("AttachInternetGateway"); err != nil {
		return nil, err
	}
	return &ec2.AttachInternetGatewayOutput{}, nil
}

func (f *fakeAWS) DetachInternetGateway(_ context.Context, in *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	f.detachIn = in
	if err := f.hit("DetachInternetGateway"); err != nil {
		return nil, err
	}
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (f *fakeAWS) DeleteInternetGateway(context.Context, *ec2.DeleteInternetGatewayInput, ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	if err := f.hit("DeleteInternetGateway"); err != nil {
		return nil, err
	}
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (f *fakeAWS) DescribeInternetGateways(context.Context, *ec2.DescribeInternetGatewaysInput, ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	return &ec2.DescribeInternetGatewaysOutput{}, f.hit("DescribeInternetGateways")
}

func (f *fakeAWS) CreateVpcEndpoint(context.Context, *ec2.CreateVpcEndpointInput, ...func(*ec2.Options)) (*ec2.CreateVpcEndpointOutput, error) {
	if err := f.hit("CreateVpcEndpoint"); err != nil {
		return nil, err
	}
	return &ec2.CreateVpcEndpointOutput{VpcEndpoint: &ec2types.VpcEndpoint{VpcEndpointId: aws.String("vpce-1")}}, nil
}

func (f *fakeAWS) ModifyVpcEndpoint(_ context.Context, in *ec2.ModifyVpcEndpointInput, _ ...func(*ec2.Options)) (*ec2.ModifyVpcEndpointOutput, error) {
	f.modifyIn = append(f.modifyIn, in)
	if err := f.hit("ModifyVpcEndpoint"); err != nil {
		return nil, err
	}
	return &ec2.ModifyVpcEndpointOutput{Return: aws.Bool(true)}, nil
}

func (f *fakeAWS) DeleteVpcEndpoints(_ context.Context, in *ec2.DeleteVpcEndpointsInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcEndpointsOutput, error) {
	if err := f.hit("DeleteVpcEndpoints"); err != nil {
		return nil, err
	}
	return &ec2.DeleteVpcEndpointsOutput{}, nil
}

func (f *fakeAWS) DescribeVpcEndpoints(_ context.Context, in *ec2.DescribeVpcEndpointsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcEndpointsOutput, error) {
	if err := f.hit("DescribeVpcEndpoints"); err != nil {
		return nil, err
	}
	var eps []ec2types.VpcEndpoint
	for _, id := range in.VpcEndpointIds {
		eps = append(eps, ec2types.VpcEndpoint{VpcEndpointId: aws.String(id), State: f.endpointState})
	}
	return &ec2.DescribeVpcEndpointsOutput{VpcEndpoints: eps}, nil
}

func (f *fakeAWS) DescribeVpcEndpointConnections(context.Context, *ec2.DescribeVpcEndpointConnectionsInput, ...func(*ec2.Options)) (*ec2.DescribeVpcEndpointConnectionsOutput, error) {
	if err := f.hit("DescribeVpcEndpointConnections"); err != nil {
		return nil, err
	}
	return &ec2.DescribeVpcEndpointConnectionsOutput{VpcEndpointConnections: f.connections}, nil
}

func (f *fakeAWS) CreateVpcEndpointConnectionNotification(_ context.Context, in *ec2.CreateVpcEndpointConnectionNotificationInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcEndpointConnectionNotificationOutput, error) {
	f.notifyIn = in
	if err := f.hit("CreateVpcEndpointConnectionNotification"); err != nil {
		return nil, err
	}
	return &ec2.CreateVpcEndpointConnectionNotificationOutput{
		ConnectionNotification: &ec2types.ConnectionNotification{ConnectionNotificationId: aws.String("vpce-nfn-1")},
	}, nil
}

func (f *fakeAWS) DeleteVpcEndpointConnectionNotifications(context.Context, *ec2.DeleteVpcEndpointConnectionNotificationsInput, ...func(*ec2.Options)) (*ec2.DeleteVpcEndpointConnectionNotificationsOutput, error) {
	if err := f.hit("DeleteVpcEndpointConnectionNotifications"); err != nil {
		return nil, err
	}
	return &ec2.DeleteVpcEndpointConnectionNotificationsOutput{}, nil
}

func (f *fakeAWS) DescribeVpcEndpointConnectionNotifications(context.Context, *ec2.DescribeVpcEndpointConnectionNotificationsInput, ...func(*ec2.Options)) (*ec2.DescribeVpcEndpointConnectionNotificationsOutput, error) {
	return &ec2.DescribeVpcEndpointConnectionNotificationsOutput{}, f.hit("DescribeVpcEndpointConnectionNotifications")
}

func (f *fakeAWS) DescribeRouteTables(context.Context, *ec2.DescribeRouteTablesInput, ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	if err := f.hit("DescribeRouteTables"); err != nil {
		return nil, err
	}
	if f.noMainTable {
		return &ec2.DescribeRouteTablesOutput{}, nil
	}
	return &ec2.DescribeRouteTablesOutput{RouteTables: []ec2types.RouteTable{{
		RouteTableId: aws.String("rtb-main"),
		Associations: []ec2types.RouteTableAssociation{{Main: aws.Bool(true)}},
	}}}, nil
}

// S3

func (f *fakeAWS) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createBucketIn = in
	if err := f.hit("CreateBucket"); err != nil {
		return nil, err
	}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeAWS) DeleteBucket(context.Context, *s3.DeleteBucketInput, ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	if err := f.hit("DeleteBucket"); err != nil {
		return nil, err
	}
	return &s3.DeleteBucketOutput{}, nil
}

func (f *fakeAWS) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.hit("HeadBucket")
}

func (f *fakeAWS) PutBucketTagging(_ context.Context, in *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	f.bucketTagIn = in
	if err := f.hit("PutBucketTagging"); err != nil {
		return nil, err
	}
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *fakeAWS) GetBucketTagging(context.Context, *s3.GetBucketTaggingInput, ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	return &s3.GetBucketTaggingOutput{}, f.hit("GetBucketTagging")
}

// Secrets Manager

func (f *fakeAWS) CreateSecret(_ context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.secretIn = in
	if err := f.hit("CreateSecret"); err != nil {
		return nil, err
	}
	arn := fmt.Sprintf("arn:aws:secretsmanager:us-east-1:012345678901:secret:%s-AbCdEf", aws.ToString(in.Name))
	return &secretsmanager.CreateSecretOutput{ARN: aws.String(arn), Name: in.Name}, nil
}

func (f *fakeAWS) DeleteSecret(_ context.Context, in *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.deleteSecretIn = in
	if err := f.hit("DeleteSecret"); err != nil {
		return nil, err
	}
	return &secretsmanager.DeleteSecretOutput{}, nil
}

func (f *fakeAWS) ListSecrets(context.Context, *secretsmanager.ListSecretsInput, ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	return &secretsmanager.ListSecretsOutput{}, f.hit("ListSecrets")
}

// CloudWatch

func (f *fakeAWS) PutMetricAlarm(_ context.Context, in *cloudwatch.PutMetricAlarmInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error) {
	f.alarmIn = in
	if err := f.hit("PutMetricAlarm"); err != nil {
		return nil, err
	}
	return &cloudwatch.PutMetricAlarmOutput{}, nil
}

func (f *fakeAWS) DeleteAlarms(context.Context, *cloudwatch.DeleteAlarmsInput, ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error) {
	if err := f.hit("DeleteAlarms"); err != nil {
		return nil, err
	}
	return &cloudwatch.DeleteAlarmsOutput{}, nil
}

func (f *fakeAWS) DescribeAlarms(context.Context, *cloudwatch.DescribeAlarmsInput, ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error) {
	return &cloudwatch.DescribeAlarmsOutput{}, f.hit("DescribeAlarms")
}

func (f *fakeAWS) ListTagsForResource(context.Context, *cloudwatch.ListTagsForResourceInput, ...func(*cloudwatch.Options)) (*cloudwatch.ListTagsForResourceOutput, error) {
	return &cloudwatch.ListTagsForResourceOutput{}, f.hit("ListTagsForResource")
}

// STS and IAM

func (f *fakeAWS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if err := f.hit("GetCallerIdentity"); err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("012345678901"),
		Arn:     aws.String("arn:aws:iam::012345678901:user/ci"),
	}, nil
}

func (f *fakeAWS) ListAccountAliases(context.Context, *iam.ListAccountAliasesInput, ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error) {
	if err := f.hit("ListAccountAliases"); err != nil {
		return nil, err
	}
	return &iam.ListAccountAliasesOutput{AccountAliases: []string{"ml-sandbox"}}, nil
}
