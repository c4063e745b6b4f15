package domain

import "fmt"

// Recognized NodeOutput keys.
const (
	KeyStatus             = "status"
	KeyError              = "error"
	KeyNextNode           = "next_node"
	KeyThought            = "thought"
	KeyRequiredCapability = "required_capability"
	KeyHandoffInstruction = "handoff_instruction"
)

// StatusFailed is the sentinel status value of a failed step.
const StatusFailed = "failed"

// NodeOutput is the mapping produced by one workflow step.
// Unrecognized keys pass through untouched.
type NodeOutput map[string]any

// Failure builds the output of a step that failed with err.
func Failure(err error) NodeOutput {
	out := NodeOutput{KeyStatus: StatusFailed}
	if err != nil {
		out[KeyError] = err.Error()
	}
	return out
}

// Status returns the status key as a string.
func (o NodeOutput) Status() string {
	return o.str(KeyStatus)
}

// Failed reports whether the output carries the failure sentinel.
func (o NodeOutput) Failed() bool {
	return o.Status() == StatusFailed
}

// ErrorMessage returns the error detail of the output.
func (o NodeOutput) ErrorMessage() string {
	return o.str(KeyError)
}

// NextNode returns the route requested by the node itself.
func (o NodeOutput) NextNode() string {
	return o.str(KeyNextNode)
}

// DomainFields returns every key the core merges into SharedState.
func (o NodeOutput) DomainFields() map[string]any {
	fields := make(map[string]any)
	for k, v := range o {
		if isControlKey(k) {
			continue
		}
		fields[k] = v
	}
	return fields
}

func (o NodeOutput) str(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func isControlKey(k string) bool {
	switch k {
	case KeyStatus, KeyError, KeyNextNode, KeyThought, KeyRequiredCapability, KeyHandoffInstruction:
		return true
	}
	return false
}
