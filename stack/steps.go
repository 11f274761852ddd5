package stack

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/google/uuid"

	"github.com/rahulwagh/aistack/fetcher"
)

type step struct {
	name string
	run  func(ctx context.Context, out *Outputs) error
}

// StepNames lists the provisioning steps in execution order.
func StepNames() []string {
	var s Stack
	var names []string
	for _, st := range s.steps() {
		names = append(names, st.name)
	}
	return names
}

func (s *Stack) steps() []step {
	return []step{
		{"create-vpc", s.createVPC},
		{"create-bucket", s.createBucket},
		{"create-gateway", s.createGateway},
		{"attach-gateway", s.attachGateway},
		{"create-endpoint", s.createEndpoint},
		{"notify-endpoint", s.notifyEndpoint},
		{"route-endpoint", s.routeEndpoint},
		{"describe-endpoint", s.describeEndpoint},
		{"create-secret", s.createSecret},
		{"create-alarm", s.createAlarm},
	}
}

func (s *Stack) ec2Tags(rt ec2types.ResourceType, name string) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{{
		ResourceType: rt,
		Tags: []ec2types.Tag{
			{Key: aws.String("Name"), Value: aws.String(name)},
			{Key: aws.String(fetcher.StackTagKey), Value: aws.String(s.cfg.Name)},
		},
	}}
}

func (s *Stack) createVPC(ctx context.Context, out *Outputs) error {
	name := s.cfg.Name + "-vpc"
	res, err := s.clients.EC2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(s.cfg.Network.CIDR),
		TagSpecifications: s.ec2Tags(ec2types.ResourceTypeVpc, name),
	})
	if err != nil {
		return fmt.Errorf("failed to create VPC %s: %w", s.cfg.Network.CIDR, err)
	}
	if res.Vpc == nil || res.Vpc.VpcId == nil {
		return errors.New("CreateVpc returned no VPC id")
	}
	out.VPCID = *res.Vpc.VpcId
	s.log.Info().Str("vpc", out.VPCID).Msg("VPC created")
	return s.record(fetcher.KindVPC, out.VPCID, name, map[string]string{fetcher.AttrCIDR: s.cfg.Network.CIDR})
}

func (s *Stack) createBucket(ctx context.Context, out *Outputs) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket.Name)}
	// us-east-1 rejects an explicit location constraint.
	if s.cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.cfg.Region),
		}
	}
	if _, err := s.clients.S3.CreateBucket(ctx, in); err != nil {
		if isAlreadyOwned(err) {
			// The bucket predates this run; it is not ours to roll back.
			s.log.Warn().Str("bucket", s.cfg.Bucket.Name).Msg("bucket already exists and is owned by this account")
			out.BucketName = s.cfg.Bucket.Name
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket.Name, err)
	}
	out.BucketName = s.cfg.Bucket.Name
	s.log.Info().Str("bucket", out.BucketName).Msg("bucket created")
	if err := s.record(fetcher.KindBucket, out.BucketName, out.BucketName, nil); err != nil {
		return err
	}

	// Buckets cannot be tagged at creation. The tag is what lets sync tell ours apart.
	_, err := s.clients.S3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket: aws.String(out.BucketName),
		Tagging: &s3types.Tagging{TagSet: []s3types.Tag{
			{Key: aws.String(fetcher.StackTagKey), Value: aws.String(s.cfg.Name)},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to tag bucket %s: %w", out.BucketName, err)
	}
	return nil
}

func (s *Stack) createGateway(ctx context.Context, out *Outputs) error {
	name := s.cfg.Name + "-igw"
	res, err := s.clients.EC2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: s.ec2Tags(ec2types.ResourceTypeInternetGateway, name),
	})
	if err != nil {
		return fmt.Errorf("failed to create internet gateway: %w", err)
	}
	if res.InternetGateway == nil || res.InternetGateway.InternetGatewayId == nil {
		return errors.New("CreateInternetGateway returned no gateway id")
	}
	out.GatewayID = *res.InternetGateway.InternetGatewayId
	s.log.Info().Str("gateway", out.GatewayID).Msg("internet gateway created")
	return s.record(fetcher.KindInternetGateway, out.GatewayID, name, nil)
}

func (s *Stack) attachGateway(ctx context.Context, out *Outputs) error {
	err := s.retry(ctx, "AttachInternetGateway", isNotVisibleYet, func() error {
		_, err := s.clients.EC2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(out.GatewayID),
			VpcId:             aws.String(out.VPCID),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to attach gateway %s to %s: %w", out.GatewayID, out.VPCID, err)
	}
	s.log.Info().Str("gateway", out.GatewayID).Str("vpc", out.VPCID).Msg("internet gateway attached")
	return s.record(fetcher.KindGatewayAttachment, out.GatewayID, "", map[string]string{fetcher.AttrVPCID: out.VPCID})
}

func (s *Stack) createEndpoint(ctx context.Context, out *Outputs) error {
	name := s.cfg.Name + "-s3-endpoint"
	var res *ec2.CreateVpcEndpointOutput
	err := s.retry(ctx, "CreateVpcEndpoint", isNotVisibleYet, func() error {
		var err error
		res, err = s.clients.EC2.CreateVpcEndpoint(ctx, &ec2.CreateVpcEndpointInput{
			VpcId:             aws.String(out.VPCID),
			ServiceName:       aws.String(s.cfg.ServiceName()),
			VpcEndpointType:   ec2types.VpcEndpointType(s.cfg.Endpoint.Type),
			TagSpecifications: s.ec2Tags(ec2types.ResourceTypeVpcEndpoint, name),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create %s endpoint in %s: %w", s.cfg.ServiceName(), out.VPCID, err)
	}
	if res.VpcEndpoint == nil || res.VpcEndpoint.VpcEndpointId == nil {
		return errors.New("CreateVpcEndpoint returned no endpoint id")
	}
	out.EndpointID = *res.VpcEndpoint.VpcEndpointId
	s.log.Info().Str("endpoint", out.EndpointID).Msg("VPC endpoint created")
	return s.record(fetcher.KindVPCEndpoint, out.EndpointID, s.cfg.ServiceName(), map[string]string{fetcher.AttrVPCID: out.VPCID})
}

func (s *Stack) notifyEndpoint(ctx context.Context, out *Outputs) error {
	topic := s.cfg.TopicARNFor(out.Account)
	res, err := s.clients.EC2.CreateVpcEndpointConnectionNotification(ctx, &ec2.CreateVpcEndpointConnectionNotificationInput{
		VpcEndpointId:             aws.String(out.EndpointID),
		ConnectionNotificationArn: aws.String(topic),
		ConnectionEvents:          s.cfg.Endpoint.NotificationEvents,
	})
	if err != nil {
		return fmt.Errorf("failed to register connection notification for %s: %w", out.EndpointID, err)
	}
	if res.ConnectionNotification == nil || res.ConnectionNotification.ConnectionNotificationId == nil {
		return errors.New("CreateVpcEndpointConnectionNotification returned no notification id")
	}
	out.NotificationID = *res.ConnectionNotification.ConnectionNotificationId
	s.log.Info().Str("notification", out.NotificationID).Str("topic", topic).Msg("connection notification registered")
	return s.record(fetcher.KindEndpointNotification, out.NotificationID, "", map[string]string{
		fetcher.AttrEndpointID: out.EndpointID,
		fetcher.AttrARN:        topic,
	})
}

// mainRouteTable finds the route table every new VPC gets.
func (s *Stack) mainRouteTable(ctx context.Context, vpcID string) (string, error) {
	res, err := s.clients.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("association.main"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe route tables of %s: %w", vpcID, err)
	}
	for _, rt := range res.RouteTables {
		for _, assoc := range rt.Associations {
			if aws.ToBool(assoc.Main) && rt.RouteTableId != nil {
				return *rt.RouteTableId, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", errNoMainTable, vpcID)
}

func (s *Stack) routeEndpoint(ctx context.Context, out *Outputs) error {
	var rt string
	// The main route table can lag behind the VPC it belongs to.
	err := s.retry(ctx, "DescribeRouteTables", func(err error) bool { return isNotVisibleYet(err) || errors.Is(err, errNoMainTable) }, func() error {
		var err error
		rt, err = s.mainRouteTable(ctx, out.VPCID)
		return err
	})
	if err != nil {
		return err
	}

	_, err = s.clients.EC2.ModifyVpcEndpoint(ctx, &ec2.ModifyVpcEndpointInput{
		VpcEndpointId:    aws.String(out.EndpointID),
		AddRouteTableIds: []string{rt},
	})
	if err != nil {
		return fmt.Errorf("failed to add route table %s to endpoint %s: %w", rt, out.EndpointID, err)
	}
	out.RouteTableID = rt
	s.log.Info().Str("endpoint", out.EndpointID).Str("route_table", rt).Msg("endpoint routed")
	return s.record(fetcher.KindEndpointRoute, rt, "", map[string]string{
		fetcher.AttrEndpointID: out.EndpointID,
		fetcher.AttrVPCID:      out.VPCID,
	})
}

var errNoMainTable = errors.New("no main route table for VPC")

// describeEndpoint reads the connection state of the endpoint. Gateway
// endpoints usually have no connection entries; their own state is used then.
func (s *Stack) describeEndpoint(ctx context.Context, out *Outputs) error {
	conns, err := s.clients.EC2.DescribeVpcEndpointConnections(ctx, &ec2.DescribeVpcEndpointConnectionsInput{
		Filters: []ec2types.Filter{{Name: aws.String("vpc-endpoint-id"), Values: []string{out.EndpointID}}},
	})
	if err != nil {
		return fmt.Errorf("failed to describe connections of %s: %w", out.EndpointID, err)
	}
	if len(conns.VpcEndpointConnections) > 0 {
		out.ConnectionState = string(conns.VpcEndpointConnections[0].VpcEndpointState)
		s.log.Info().Str("endpoint", out.EndpointID).Str("state", out.ConnectionState).Msg("endpoint connection state")
		return nil
	}

	eps, err := s.clients.EC2.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
		VpcEndpointIds: []string{out.EndpointID},
	})
	if err != nil {
		return fmt.Errorf("failed to describe endpoint %s: %w", out.EndpointID, err)
	}
	if len(eps.VpcEndpoints) == 0 {
		return fmt.Errorf("endpoint %s not found", out.EndpointID)
	}
	out.ConnectionState = string(eps.VpcEndpoints[0].State)
	s.log.Info().Str("endpoint", out.EndpointID).Str("state", out.ConnectionState).Msg("endpoint state (no connections reported)")
	return nil
}

func (s *Stack) createSecret(ctx context.Context, out *Outputs) error {
	value := s.cfg.Secret.Value
	if value == "" {
		value = uuid.NewString()
	}
	in := &secretsmanager.CreateSecretInput{
		Name:         aws.String(s.cfg.Secret.Name),
		SecretString: aws.String(value),
		Tags: []smtypes.Tag{
			{Key: aws.String(fetcher.StackTagKey), Value: aws.String(s.cfg.Name)},
		},
	}
	if s.cfg.Secret.Description != "" {
		in.Description = aws.String(s.cfg.Secret.Description)
	}
	res, err := s.clients.Secrets.CreateSecret(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create secret %s: %w", s.cfg.Secret.Name, err)
	}
	out.SecretARN = aws.ToString(res.ARN)
	if out.SecretARN == "" {
		out.SecretARN = s.cfg.Secret.Name
	}
	s.log.Info().Str("secret", s.cfg.Secret.Name).Msg("secret created")
	return s.record(fetcher.KindSecret, out.SecretARN, s.cfg.Secret.Name, nil)
}

func (s *Stack) createAlarm(ctx context.Context, out *Outputs) error {
	a := s.cfg.Alarm
	_, err := s.clients.Alarms.PutMetricAlarm(ctx, &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(a.Name),
		AlarmDescription:   aws.String(fmt.Sprintf("%s %s on %s/%s (stack %s)", a.Statistic, a.ComparisonOperator, a.Namespace, a.MetricName, s.cfg.Name)),
		ComparisonOperator: cwtypes.ComparisonOperator(a.ComparisonOperator),
		EvaluationPeriods:  aws.Int32(a.EvaluationPeriods),
		MetricName:         aws.String(a.MetricName),
		Namespace:          aws.String(a.Namespace),
		Period:             aws.Int32(a.Period),
		Threshold:          aws.Float64(a.Threshold),
		Statistic:          cwtypes.Statistic(a.Statistic),
		Tags: []cwtypes.Tag{
			{Key: aws.String(fetcher.StackTagKey), Value: aws.String(s.cfg.Name)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create alarm %s: %w", a.Name, err)
	}
	out.AlarmName = a.Name
	s.log.Info().Str("alarm", a.Name).Msg("metric alarm created")
	return s.record(fetcher.KindMetricAlarm, a.Name, a.Name, nil)
}
