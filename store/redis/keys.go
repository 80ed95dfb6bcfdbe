package redis

import "strconv"

// Redis key naming conventions for stepflow data. All keys carry the
// "stepflow:" prefix and the store's namespace, so distinct workflows
// sharing one Redis instance never collide.

const keyPrefix = "stepflow:"

// stateKey returns the Hash key for the workflow state:
// stepflow:{namespace}:state
func (s *Store) stateKey() string { return keyPrefix + s.namespace + ":state" }

// stepKey returns the Hash key for a step result:
// stepflow:{namespace}:step:{id}
func (s *Store) stepKey(stepID int) string {
	return keyPrefix + s.namespace + ":step:" + strconv.Itoa(stepID)
}

// stepIDsKey returns the Set key tracking recorded step ids:
// stepflow:{namespace}:step_ids
func (s *Store) stepIDsKey() string { return keyPrefix + s.namespace + ":step_ids" }
