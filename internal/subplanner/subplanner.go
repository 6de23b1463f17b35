// Package subplanner implements the Subscription Planner (spec.md §4.5):
// given the Assigner Controller's removedMap of incomplete Tier-1
// replication, it decides whether and where to subscribe a dataset, and
// issues the subscription order.
package subplanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/gridassign/gridassign/internal/model"
	"github.com/gridassign/gridassign/internal/subscription"
)

// sourcesPolicy is the fixed DDM policy bitmask every subscription order
// carries, per spec.md §4.5 step 5 / §9. Preserved as the literal value,
// not decomposed into named flags the source system does not expose.
const sourcesPolicy = 0o1000 | 0o10000

const (
	defaultSpaceLow       = 1024 // GB
	defaultSpacePerRW     = 0.2  // GB/unit
	defaultRWSub          = 600
	defaultListRetries    = 3
	defaultListBackoff    = 30 * time.Second
	defaultRegisterRetries = 3
	bytesPerGB            = 1024 * 1024 * 1024
)

// CloudInput is the per-cloud data the planner needs that it cannot derive
// itself: Tier-1 free space, the Tier-1 DDM endpoint identifier used both
// to probe for existing subscriptions and as the registration target, and
// the cloud's MC-share.
type CloudInput struct {
	Name          string
	T1Space       float64 // GB
	T1DDMEndpoint string
	MCShare       float64
}

// Input bundles one subscribe() call's parameters (spec.md §4.5).
type Input struct {
	RemovedMap      map[string][]string // dataset -> clouds with incomplete/missing Tier-1
	RW              map[string]float64  // cloud -> RW
	FullRW          map[string]float64  // cloud -> fullRW
	ExpectedRWSelf  float64
	CandidateSubs   []string // clouds that survived the Controller's step-4 filters
	Clouds          map[string]CloudInput
	NoEmptyCheck    bool
	AcceptInProcess bool
}

// Planner implements the Subscription Planner's subscribe() operation.
type Planner struct {
	ddm      DDM
	identity Identity
	ledger   *subscription.Ledger

	spaceLow   float64
	spacePerRW float64
	rwSub      float64

	listRetries     int
	listBackoff     time.Duration
	registerRetries int
}

// Option configures a Planner away from its defaults.
type Option func(*Planner)

func WithPolicy(spaceLow, spacePerRW, rwSub float64) Option {
	return func(p *Planner) {
		p.spaceLow = spaceLow
		p.spacePerRW = spacePerRW
		p.rwSub = rwSub
	}
}

func WithRetries(listRetries int, listBackoff time.Duration, registerRetries int) Option {
	return func(p *Planner) {
		p.listRetries = listRetries
		p.listBackoff = listBackoff
		p.registerRetries = registerRetries
	}
}

// New returns a Planner backed by the given DDM and Identity collaborators
// and duplicate-suppression ledger.
func New(ddm DDM, identity Identity, ledger *subscription.Ledger, opts ...Option) *Planner {
	p := &Planner{
		ddm:             ddm,
		identity:        identity,
		ledger:          ledger,
		spaceLow:        defaultSpaceLow,
		spacePerRW:      defaultSpacePerRW,
		rwSub:           defaultRWSub,
		listRetries:     defaultListRetries,
		listBackoff:     defaultListBackoff,
		registerRetries: defaultRegisterRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe implements spec.md §4.5's subscribe() operation.
func (p *Planner) Subscribe(ctx context.Context, in Input) (bool, error) {
	candidates := intersectCandidates(in.RemovedMap, in.CandidateSubs)
	if len(candidates) == 0 {
		log.Printf("[subplanner] no candidate clouds for subscription, declining")
		return false, nil
	}

	var ownerDN string
	if !in.AcceptInProcess {
		dn, err := p.identity.CallerDN(ctx)
		if err != nil {
			return false, fmt.Errorf("subplanner: resolve caller identity: %w", err)
		}
		ownerDN = subscription.CanonicalizeDN(dn)

		if dup, err := p.hasDuplicate(ctx, in.RemovedMap, in.Clouds, ownerDN); err != nil {
			return false, fmt.Errorf("subplanner: duplicate-suppression check: %w", err)
		} else if dup {
			log.Printf("[subplanner] owner=%s already has an in-flight subscription, declining", ownerDN)
			return false, nil
		}
	}

	datasetSize, err := p.sizeDatasets(ctx, in.RemovedMap)
	if err != nil {
		return false, fmt.Errorf("subplanner: sizing datasets: %w", err)
	}

	chosen, ok := p.selectCloud(in, candidates, datasetSize)
	if !ok {
		log.Printf("[subplanner] no cloud survives space/mcshare/RW scoring, declining")
		return false, nil
	}

	if err := p.issueOrders(ctx, in.RemovedMap, in.Clouds, chosen, ownerDN); err != nil {
		return false, fmt.Errorf("subplanner: issuing orders: %w", err)
	}

	return true, nil
}

func intersectCandidates(removedMap map[string][]string, candidateSubs []string) []string {
	eligible := make(map[string]bool, len(candidateSubs))
	for _, c := range candidateSubs {
		eligible[c] = true
	}

	union := make(map[string]bool)
	for _, clouds := range removedMap {
		for _, c := range clouds {
			if eligible[c] {
				union[c] = true
			}
		}
	}

	out := make([]string, 0, len(union))
	for c := range union {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// hasDuplicate implements spec.md §4.5 step 2: for each dataset in
// removedMap, probe the Tier-1 endpoint of every cloud in clouds, and look
// for an existing subscription owned by ownerDN.
func (p *Planner) hasDuplicate(ctx context.Context, removedMap map[string][]string, clouds map[string]CloudInput, ownerDN string) (bool, error) {
	cloudNames := make([]string, 0, len(clouds))
	for name := range clouds {
		cloudNames = append(cloudNames, name)
	}
	sort.Strings(cloudNames)

	datasets := sortedKeys(removedMap)
	for _, dataset := range datasets {
		if _, ok := p.ledger.Lookup(dataset, ownerDN); ok {
			return true, nil
		}

		for _, cloud := range cloudNames {
			endpoint := clouds[cloud].T1DDMEndpoint
			if endpoint == "" {
				continue
			}
			info, err := p.probeSubscriptionInfo(ctx, dataset, endpoint)
			if errors.Is(err, ErrDestinationUnknown) {
				continue
			}
			if err != nil {
				return false, err
			}
			if info.Exists && subscription.CanonicalizeDN(info.OwnerDN) == ownerDN {
				return true, nil
			}
		}
	}
	return false, nil
}

func (p *Planner) probeSubscriptionInfo(ctx context.Context, dataset, endpoint string) (SubscriptionInfo, error) {
	var info SubscriptionInfo
	var unknown bool
	err := retry.Do(
		func() error {
			var innerErr error
			info, innerErr = p.ddm.ListSubscriptionInfo(ctx, dataset, endpoint)
			if errors.Is(innerErr, ErrDestinationUnknown) {
				unknown = true
				return retry.Unrecoverable(innerErr)
			}
			return innerErr
		},
		retry.Attempts(uint(p.listRetries)),
		retry.Delay(p.listBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[subplanner] listSubscriptionInfo(%s, %s) retry %d: %v", dataset, endpoint, n+1, err)
		}),
	)
	if unknown {
		// retry.Do wraps the error it returns; hand back the bare sentinel
		// so callers can match it with errors.Is.
		return info, ErrDestinationUnknown
	}
	return info, err
}

func (p *Planner) sizeDatasets(ctx context.Context, removedMap map[string][]string) (map[string]int64, error) {
	sizes := make(map[string]int64, len(removedMap))
	for _, dataset := range sortedKeys(removedMap) {
		files, err := p.ddm.ListFilesInDataset(ctx, dataset)
		if err != nil {
			return nil, fmt.Errorf("listFilesInDataset(%s): %w", dataset, err)
		}
		var totalBytes int64
		for _, f := range files {
			totalBytes += f.SizeBytes
		}
		sizes[dataset] = totalBytes / bytesPerGB
	}
	return sizes, nil
}

// selectCloud implements spec.md §4.5 step 4.
func (p *Planner) selectCloud(in Input, candidates []string, datasetSize map[string]int64) (string, bool) {
	type scored struct {
		cloud string
		r     float64
	}
	var best *scored

	for _, cloud := range candidates {
		info, ok := in.Clouds[cloud]
		if !ok || info.MCShare == 0 {
			continue
		}

		var committedGB int64
		for dataset, clouds := range in.RemovedMap {
			for _, c := range clouds {
				if c == cloud {
					committedGB += datasetSize[dataset]
				}
			}
		}

		availableSpace := info.T1Space - p.spacePerRW*(in.FullRW[cloud]+in.ExpectedRWSelf) - float64(committedGB)
		if availableSpace < p.spaceLow {
			continue
		}

		r := in.RW[cloud] / (p.rwSub * info.MCShare)
		if best == nil || r < best.r {
			best = &scored{cloud: cloud, r: r}
		}
	}

	if best == nil {
		return "", false
	}
	if best.r > 1.0 && !in.NoEmptyCheck {
		return "", false
	}
	return best.cloud, true
}

// issueOrders implements spec.md §4.5 step 5.
func (p *Planner) issueOrders(ctx context.Context, removedMap map[string][]string, clouds map[string]CloudInput, chosenCloud string, ownerDN string) error {
	opts := RegisterOptions{
		SourcesPolicy: sourcesPolicy,
		SShare:        "production",
		ACLAlias:      "secondary",
	}

	endpoint := clouds[chosenCloud].T1DDMEndpoint
	if endpoint == "" {
		return fmt.Errorf("issueOrders: cloud %s has no Tier-1 DDM endpoint", chosenCloud)
	}

	for _, dataset := range sortedKeys(removedMap) {
		targeted := false
		for _, c := range removedMap[dataset] {
			if c == chosenCloud {
				targeted = true
				break
			}
		}
		if !targeted {
			continue
		}

		err := retry.Do(
			func() error {
				innerErr := p.ddm.RegisterDatasetSubscription(ctx, dataset, endpoint, opts)
				if errors.Is(innerErr, ErrAlreadyExists) {
					return nil
				}
				return innerErr
			},
			retry.Attempts(uint(p.registerRetries)),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				log.Printf("[subplanner] registerDatasetSubscription(%s, %s) retry %d: %v", dataset, endpoint, n+1, err)
			}),
		)
		if err != nil {
			return fmt.Errorf("registerDatasetSubscription(%s, %s): %w", dataset, endpoint, err)
		}

		if ownerDN != "" {
			p.ledger.Record(model.SubscriptionOrder{
				Dataset:     dataset,
				Cloud:       chosenCloud,
				OwnerDN:     ownerDN,
				CreatedAtNs: time.Now().UnixNano(),
			})
		}
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
