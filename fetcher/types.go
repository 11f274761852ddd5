package fetcher

// StandardizedResource is our common format for every resource the stack owns.
// Service holds one of the Kind* constants below.
type StandardizedResource struct {
	Provider   string            `json:"provider"`
	Service    string            `json:"service"`
	Region     string            `json:"region"`
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// StackTagKey is the tag every taggable resource carries; its value is the stack name.
const StackTagKey = "aistack:stack"

// Resource kinds, in the order the stack creates them.
const (
	KindVPC                  = "vpc"
	KindBucket               = "s3-bucket"
	KindInternetGateway      = "internet-gateway"
	KindGatewayAttachment    = "gateway-attachment"
	KindVPCEndpoint          = "vpc-endpoint"
	KindEndpointNotification = "endpoint-notification"
	KindEndpointRoute        = "endpoint-route"
	KindSecret               = "secret"
	KindMetricAlarm          = "metric-alarm"
)

// Attribute keys shared by the stack, the inventory and the ledger.
const (
	AttrStack      = "stack"
	AttrVPCID      = "vpc_id"
	AttrEndpointID = "endpoint_id"
	AttrState      = "state"
	AttrCIDR       = "cidr"
	AttrARN        = "arn"
)

// NewAWSResource builds an aws resource for the given stack. attrs may be nil.
func NewAWSResource(stack, kind, region, id, name string, attrs map[string]string) StandardizedResource {
	a := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		a[k] = v
	}
	a[AttrStack] = stack
	if name == "" {
		name = id
	}
	return StandardizedResource{
		Provider:   "aws",
		Service:    kind,
		Region:     region,
		ID:         id,
		Name:       name,
		Attributes: a,
	}
}

// Stack returns the stack a resource belongs to, or "" if it has none.
func (r StandardizedResource) Stack() string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[AttrStack]
}

// Attr returns an attribute value, or "" when missing.
func (r StandardizedResource) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// SameAs reports whether two entries describe the same remote object.
func (r StandardizedResource) SameAs(o StandardizedResource) bool {
	return r.Service == o.Service && r.ID == o.ID && r.Region == o.Region
}
