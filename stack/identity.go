package stack

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Identity is who the stack runs as.
type Identity struct {
	Account string
	ARN     string
	Alias   string
}

// WhoAmI resolves the caller's account and, when permitted, its alias.
// A missing alias permission is not an error.
func (s *Stack) WhoAmI(ctx context.Context) (*Identity, error) {
	out, err := s.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	id := &Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
	}

	if s.clients.IAM != nil {
		aliases, err := s.clients.IAM.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{})
		if err != nil {
			s.log.Warn().Err(err).Msg("could not read account alias")
		} else if len(aliases.AccountAliases) > 0 {
			id.Alias = aliases.AccountAliases[0]
		}
	}
	return id, nil
}
