package mcap

// ReadOrder selects the order in which a message iterator delivers
// messages. Grounded on go/mcap/reader_options.go.
type ReadOrder int

const (
	// FileOrder delivers messages in the order they are stored in the
	// file when read by the unindexed iterator; it is the only order
	// available without an index. The indexed iterator does not treat
	// FileOrder separately and delivers such reads in ascending LogTime
	// order.
	FileOrder ReadOrder = iota
	// LogTimeOrder delivers messages in ascending LogTime order.
	LogTimeOrder
	// ReverseLogTimeOrder delivers messages in descending LogTime order.
	ReverseLogTimeOrder
)

// ReadOptions configures an indexed message read. Construct with
// ReadOpt functional options rather than setting fields directly.
type ReadOptions struct {
	StartNanos uint64
	EndNanos   uint64
	Topics     []string
	UseIndex   bool
	Order      ReadOrder

	// MetadataCallback, when set, is invoked once per Metadata record
	// recorded in the file's summary index before an indexed iterator
	// yields its first message. It has no effect on unindexed reads,
	// which have no summary index to consult up front.
	MetadataCallback func(*Metadata) error

	hasStart bool
	hasEnd   bool
}

// Finalize validates the accumulated options, rejecting combinations the
// engine cannot serve (e.g. an ordered read without an index).
func (o *ReadOptions) Finalize() error {
	if o.Order != FileOrder && !o.UseIndex {
		return &UnexpectedTokenError{Reason: "LogTimeOrder and ReverseLogTimeOrder require UsingIndex"}
	}
	return nil
}

func (o *ReadOptions) includesTopic(topic string) bool {
	if len(o.Topics) == 0 {
		return true
	}
	for _, t := range o.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (o *ReadOptions) includesTime(t uint64) bool {
	if o.hasStart && t < o.StartNanos {
		return false
	}
	if o.hasEnd && t >= o.EndNanos {
		return false
	}
	return true
}

// ReadOpt is a functional option for building ReadOptions.
type ReadOpt func(*ReadOptions) error

// AfterNanos restricts reads to messages with LogTime >= t.
func AfterNanos(t uint64) ReadOpt {
	return func(o *ReadOptions) error {
		o.StartNanos = t
		o.hasStart = true
		return nil
	}
}

// BeforeNanos restricts reads to messages with LogTime < t.
func BeforeNanos(t uint64) ReadOpt {
	return func(o *ReadOptions) error {
		o.EndNanos = t
		o.hasEnd = true
		return nil
	}
}

// WithTopics restricts reads to the named topics. An empty or omitted
// list means all topics.
func WithTopics(topics []string) ReadOpt {
	return func(o *ReadOptions) error {
		o.Topics = topics
		return nil
	}
}

// InOrder selects the delivery order, implying UsingIndex for anything
// other than FileOrder.
func InOrder(order ReadOrder) ReadOpt {
	return func(o *ReadOptions) error {
		o.Order = order
		if order != FileOrder {
			o.UseIndex = true
		}
		return nil
	}
}

// WithMetadataCallback replays every Metadata record known to the summary
// index through f before the indexed iterator yields its first message.
// Grounded on the teacher's streaming-metadata-during-read idiom, adapted
// to a single up-front replay since Metadata records are addressed by the
// summary index rather than interleaved with the messages themselves.
func WithMetadataCallback(f func(*Metadata) error) ReadOpt {
	return func(o *ReadOptions) error {
		o.MetadataCallback = f
		return nil
	}
}

// UsingIndex forces (or, with false, forbids) use of the summary index.
func UsingIndex(use bool) ReadOpt {
	return func(o *ReadOptions) error {
		o.UseIndex = use
		return nil
	}
}

// NewReadOptions builds a *ReadOptions from functional options, finalizing
// and validating the result.
func NewReadOptions(opts ...ReadOpt) (*ReadOptions, error) {
	o := &ReadOptions{UseIndex: true, Order: LogTimeOrder}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := o.Finalize(); err != nil {
		return nil, err
	}
	return o, nil
}
