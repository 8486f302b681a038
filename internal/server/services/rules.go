package services

import (
	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
)

// Rule describes who may touch documents of one collection: the caller must
// be the user named by OwnerField.
type Rule struct {
	OwnerField string
}

// Rules maps collection names to their access rule. Collections without a
// rule are closed.
type Rules map[string]Rule

func DefaultRules() Rules {
	return Rules{
		common.NotesCollection: {OwnerField: "userId"},
	}
}

func (r Rules) rule(collection string) (Rule, error) {
	rule, ok := r[collection]
	if !ok {
		return Rule{}, common.ErrorPermissionDenied
	}
	return rule, nil
}

// CanCreate requires the new document to be owned by userID.
func (r Rules) CanCreate(userID, collection string, fields map[string]any) error {
	rule, err := r.rule(collection)
	if err != nil {
		return err
	}
	if docstore.String(fields, rule.OwnerField) != userID {
		return common.ErrorPermissionDenied
	}
	return nil
}

// CanModify requires existing to be owned by userID and, when patch is
// given, forbids moving the document to another owner.
func (r Rules) CanModify(userID, collection string, existing, patch map[string]any) error {
	rule, err := r.rule(collection)
	if err != nil {
		return err
	}
	if docstore.String(existing, rule.OwnerField) != userID {
		return common.ErrorPermissionDenied
	}
	if v, ok := patch[rule.OwnerField]; ok {
		if s, _ := v.(string); s != userID {
			return common.ErrorPermissionDenied
		}
	}
	return nil
}

// CanRead requires the query to be scoped to userID's own documents.
func (r Rules) CanRead(userID, collection string, filter docstore.Filter) error {
	rule, err := r.rule(collection)
	if err != nil {
		return err
	}
	if filter.Field != rule.OwnerField || filter.Value != userID {
		return common.ErrorPermissionDenied
	}
	return nil
}

// ChangeKeys returns the fields a live query on collection can be filtered
// by. Only the owner field qualifies, so document contents never leave the
// transaction.
func (r Rules) ChangeKeys(collection string, fields map[string]any) map[string]string {
	rule, ok := r[collection]
	if !ok {
		return map[string]string{}
	}
	return map[string]string{rule.OwnerField: docstore.String(fields, rule.OwnerField)}
}
