// Package access decides what a requester may do on the school's resources.
//
// Each role has its own rule table: roles do not inherit from one another,
// so changing the rules of one role never affects another.
package access

import (
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type (
	Action   string
	Resource string

	// Scope narrows the records an allowed action applies to.
	Scope int
)

// Actions
const (
	ActionList   Action = "list"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resources
const (
	ResourceUser       Resource = "user"
	ResourceStudent    Resource = "student"
	ResourceCourse     Resource = "course"
	ResourceEnrollment Resource = "enrollment"
	ResourceGrade      Resource = "grade"
	ResourceAttendance Resource = "attendance"
	ResourceAnalytics  Resource = "analytics"
)

// Scopes
const (
	ScopeNone      Scope = iota // denied
	ScopeAll                    // any record
	ScopeOwnCourse              // records of courses taught by the requester
	ScopeSelf                   // records of the requester
)

var (
	allResources = []Resource{
		ResourceUser, ResourceStudent, ResourceCourse, ResourceEnrollment,
		ResourceGrade, ResourceAttendance, ResourceAnalytics,
	}
	allActions = []Action{ActionList, ActionRead, ActionCreate, ActionUpdate, ActionDelete}

	readOnly = func(s Scope) map[Action]Scope {
		return map[Action]Scope{ActionList: s, ActionRead: s}
	}

	policies = map[user.Role]map[Resource]map[Action]Scope{
		user.RoleAdmin: adminRules(),
		user.RoleTeacher: {
			ResourceUser:       {ActionRead: ScopeSelf, ActionUpdate: ScopeSelf},
			ResourceStudent:    readOnly(ScopeAll),
			ResourceCourse:     readOnly(ScopeAll),
			ResourceEnrollment: readOnly(ScopeOwnCourse),
			ResourceGrade: {
				ActionList: ScopeOwnCourse, ActionRead: ScopeOwnCourse,
				ActionCreate: ScopeOwnCourse, ActionUpdate: ScopeOwnCourse, ActionDelete: ScopeOwnCourse,
			},
			ResourceAttendance: {
				ActionList: ScopeOwnCourse, ActionRead: ScopeOwnCourse,
				ActionCreate: ScopeOwnCourse, ActionUpdate: ScopeOwnCourse, ActionDelete: ScopeOwnCourse,
			},
		},
		user.RoleStudent: {
			ResourceUser:       {ActionRead: ScopeSelf, ActionUpdate: ScopeSelf},
			ResourceStudent:    {ActionList: ScopeSelf, ActionRead: ScopeSelf, ActionUpdate: ScopeSelf},
			ResourceCourse:     readOnly(ScopeAll),
			ResourceEnrollment: {ActionList: ScopeSelf, ActionRead: ScopeSelf, ActionCreate: ScopeSelf},
			ResourceGrade:      readOnly(ScopeSelf),
			ResourceAttendance: {
				ActionList: ScopeSelf, ActionRead: ScopeSelf, ActionCreate: ScopeSelf, ActionUpdate: ScopeSelf,
			},
		},
	}
)

func adminRules() map[Resource]map[Action]Scope {
	rules := make(map[Resource]map[Action]Scope, len(allResources))
	for _, res := range allResources {
		rules[res] = make(map[Action]Scope, len(allActions))
		for _, act := range allActions {
			rules[res][act] = ScopeAll
		}
	}
	return rules
}

// Subject is the authenticated requester.
type Subject struct {
	UserID string
	Role   user.Role
}

func SubjectOf(usr user.User) Subject {
	return Subject{UserID: usr.ID, Role: usr.Role}
}

func (s Subject) IsAdmin() bool { return s.Role == user.RoleAdmin }

// Target describes the record an action applies to.
// Owner fields left empty never match a requester.
type Target struct {
	Resource        Resource
	UserID          string // the user the record is (user resource)
	StudentUserID   string // the user of the student the record belongs to
	CourseTeacherID string // the teacher of the course the record belongs to
}

// ScopeFor returns the scope the rules grant sub for action on resource.
func ScopeFor(sub Subject, action Action, resource Resource) Scope {
	if rules, ok := policies[sub.Role]; ok {
		if actions, ok := rules[resource]; ok {
			return actions[action]
		}
	}
	return ScopeNone
}

// ListScope returns how a collection of resource must be filtered for sub.
func ListScope(sub Subject, resource Resource) (Scope, error) {
	scope := ScopeFor(sub, ActionList, resource)
	if scope == ScopeNone {
		return ScopeNone, core.NewAuthorizationError(string(ActionList), string(resource))
	}
	return scope, nil
}

// Decide returns nil if sub may perform action on target, an *core.AuthorizationError otherwise.
func Decide(sub Subject, action Action, target Target) error {
	if Allowed(sub, action, target) {
		return nil
	}
	return core.NewAuthorizationError(string(action), string(target.Resource))
}

func Allowed(sub Subject, action Action, target Target) bool {
	if sub.UserID == "" {
		return false
	}
	switch ScopeFor(sub, action, target.Resource) {
	case ScopeAll:
		return true
	case ScopeOwnCourse:
		return target.CourseTeacherID == sub.UserID
	case ScopeSelf:
		if target.Resource == ResourceUser {
			return target.UserID == sub.UserID
		}
		return target.StudentUserID == sub.UserID
	}
	return false
}
