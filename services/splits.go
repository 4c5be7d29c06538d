package services

import (
	"context"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// SplitRatios are the train and dev shares; test takes the remainder
type SplitRatios struct {
	Train float64
	Dev   float64
}

// Validate checks the ratios are shares of one
func (r SplitRatios) Validate() error {
	if r.Train < 0 || r.Dev < 0 || r.Train+r.Dev > 1 {
		return errors.Errorf("invalid split ratios train=%.2f dev=%.2f", r.Train, r.Dev)
	}
	return nil
}

// SplitFor deterministically places a document name in a split. The same
// name always lands in the same split for the same ratios.
func (r SplitRatios) SplitFor(name string) model.Split {
	u := float64(xxhash.Sum64String(name)%10000) / 10000
	switch {
	case u < r.Train:
		return model.SplitTrain
	case u < r.Train+r.Dev:
		return model.SplitDev
	default:
		return model.SplitTest
	}
}

// AssignSplits places documents in splits. Without names every unassigned
// document is placed. It returns the number of documents per split.
func (c *Corpus) AssignSplits(ctx context.Context, ratios SplitRatios, names []string) (map[model.Split]int, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		var err error
		names, err = c.Store.DocumentNames(ctx, model.SplitUnassigned)
		if err != nil {
			return nil, err
		}
	}

	counts := make(map[model.Split]int)
	for _, name := range names {
		split := ratios.SplitFor(name)
		if err := c.Store.AssignSplit(ctx, name, split); err != nil {
			return counts, errors.Wrapf(err, "assign %s", name)
		}
		counts[split]++
	}
	c.Logger.WithField("documents", len(names)).Infof("Assigned splits %v", counts)
	return counts, nil
}
