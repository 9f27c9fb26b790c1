package analysis

type Destination string

const (
	Flagged Destination = "flagged"
	Safe    Destination = "safe"
)

// Threshold is a tag name and the minimum probability at which it counts.
type Threshold struct {
	Name        string
	Probability float64
}

type Classification struct {
	// CurrentTagFlagged holds predictions for the swept tag at or above its threshold.
	CurrentTagFlagged []Prediction
	// AllFlaggedTags holds predictions for any module tag at or above that tag's
	// own threshold. It only decides the destination folder.
	AllFlaggedTags []Prediction
	Destination    Destination
}

// Classify computes both views for one tag sweep. The two are independent:
// an image can land in the flagged folder without notifying for current.
func Classify(predictions []Prediction, current Threshold, moduleTags []Threshold) Classification {
	var c Classification
	for _, p := range predictions {
		if p.TagName == current.Name && p.Probability >= current.Probability {
			c.CurrentTagFlagged = append(c.CurrentTagFlagged, p)
		}
		for _, t := range moduleTags {
			if t.Name != p.TagName {
				continue
			}
			if p.Probability >= t.Probability {
				c.AllFlaggedTags = append(c.AllFlaggedTags, p)
			}
			break
		}
	}

	c.Destination = Safe
	if len(c.AllFlaggedTags) > 0 {
		c.Destination = Flagged
	}
	return c
}
