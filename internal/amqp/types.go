package amqp

// JobRequest is one grading job published to the request queue: run one step
// against the artifact and send the result to ResponseQueue. Immutable once
// published; the opaque token is correlation context the worker must carry
// back untouched.
type JobRequest struct {
	Step          string `json:"step"`
	ArtifactURL   string `json:"artifactUrl"`
	ResponseQueue string `json:"responseQueue"`
	Opaque        string `json:"opaque"`

	// DeliveryTag identifies the broker delivery this request arrived on.
	// It is meaningful only to the worker that received it and is never
	// serialized across the process boundary.
	DeliveryTag uint64 `json:"-"`
}

// JobResponse carries the raw YAML result of one job back to the frontend.
type JobResponse struct {
	Step          string `json:"step"`
	Opaque        string `json:"opaque"`
	ResultPayload string `json:"resultPayload"`

	// ResponseQueue and DeliveryTag are local routing state threaded from
	// the matching JobRequest so the relay can publish and then acknowledge.
	ResponseQueue string `json:"-"`
	DeliveryTag   uint64 `json:"-"`
}

// Delivery is one raw message off a queue together with its broker tag.
type Delivery struct {
	Body []byte
	Tag  uint64
}
