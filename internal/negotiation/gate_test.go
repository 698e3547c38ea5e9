package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/model"
)

func TestAuthorize(t *testing.T) {
	stored := &model.Negotiation{ID: "n1", ClientToken: "T", ClientEmail: "E@x.com"}
	seller := &model.Principal{UserID: "u1", Roles: []string{model.RoleSeller}}
	admin := &model.Principal{UserID: "u2", Roles: []string{model.RoleAdmin}}
	plain := &model.Principal{UserID: "u3"}

	tests := []struct {
		name      string
		action    Action
		principal *model.Principal
		client    identity.ClientIdentity
		target    *model.Negotiation
		want      Decision
	}{
		{"read missing", ActionRead, nil, identity.New("T", ""), nil, NotFound},
		{"read by email", ActionRead, nil, identity.New("", "E@x.com"), stored, Allow},
		{"read by token", ActionRead, nil, identity.New("T", ""), stored, Allow},
		{"read by both", ActionRead, nil, identity.New("T", "E@x.com"), stored, Allow},
		{"read with neither", ActionRead, nil, identity.New("", ""), stored, Forbid},
		{"read with wrong token", ActionRead, nil, identity.New("X", ""), stored, Forbid},
		{"read authenticated without roles", ActionRead, plain, identity.New("", ""), stored, Allow},

		{"propose missing", ActionPropose, nil, identity.New("T", ""), nil, NotFound},
		{"propose by email", ActionPropose, nil, identity.New("", "E@x.com"), stored, Allow},
		{"propose mismatch", ActionPropose, nil, identity.New("X", "z@x.com"), stored, Forbid},
		{"propose seller without identity", ActionPropose, seller, identity.New("", ""), stored, Forbid},

		{"manage unauthenticated", ActionManage, nil, identity.New("T", "E@x.com"), stored, Unauthenticated},
		{"manage without role", ActionManage, plain, identity.New("", ""), stored, Forbid},
		{"manage seller", ActionManage, seller, identity.New("", ""), stored, Allow},
		{"manage admin", ActionManage, admin, identity.New("", ""), stored, Allow},
		{"manage missing after role check", ActionManage, seller, identity.New("", ""), nil, NotFound},
		{"manage unauthenticated before not found", ActionManage, nil, identity.New("", ""), nil, Unauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.action, tt.principal, tt.client, tt.target)
			assert.Equal(t, tt.want, got, "got %s want %s", got, tt.want)
		})
	}
}

func TestDecisionError(t *testing.T) {
	assert.NoError(t, decisionError(Allow, "n1"))
	assert.Equal(t, model.ErrCodeNegotiationNotFound, model.ErrorCode(decisionError(NotFound, "n1")))
	assert.Equal(t, model.ErrCodeForbidden, model.ErrorCode(decisionError(Forbid, "n1")))
	assert.Equal(t, model.ErrCodeUnauthorized, model.ErrorCode(decisionError(Unauthenticated, "n1")))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "forbid", Forbid.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
}
