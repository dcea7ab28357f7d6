package domain

// RatingAggregate keeps a running sum and count so the average never needs a full scan.
type RatingAggregate struct {
	Sum   int64
	Count int64
}

// Apply folds a single rating into the aggregate.
func (a RatingAggregate) Apply(rating int) RatingAggregate {
	return RatingAggregate{Sum: a.Sum + int64(rating), Count: a.Count + 1}
}

// Average returns the mean rating, or zero when nothing has been rated yet.
func (a RatingAggregate) Average() float64 {
	if a.Count <= 0 {
		return 0
	}
	return float64(a.Sum) / float64(a.Count)
}

// RatingTargetKind names the aggregate a review contributes to.
type RatingTargetKind string

const (
	RatingTargetGig            RatingTargetKind = "gig"
	RatingTargetUserAsProvider RatingTargetKind = "user_as_provider"
	RatingTargetUserAsClient   RatingTargetKind = "user_as_client"
)

// RatingTarget identifies one aggregate updated by a review.
type RatingTarget struct {
	Kind RatingTargetKind
	ID   string
}

// RatingTargetsFor lists the aggregates a review updates.
// Client reviews rate the gig and its provider; provider reviews rate the client.
func RatingTargetsFor(review Review) []RatingTarget {
	switch review.Role {
	case ReviewRoleClient:
		return []RatingTarget{
			{Kind: RatingTargetGig, ID: review.GigID},
			{Kind: RatingTargetUserAsProvider, ID: review.RevieweeID},
		}
	case ReviewRoleProvider:
		return []RatingTarget{
			{Kind: RatingTargetUserAsClient, ID: review.RevieweeID},
		}
	default:
		return nil
	}
}

// Recompute rebuilds an aggregate from raw ratings.
func Recompute(ratings []int) RatingAggregate {
	var agg RatingAggregate
	for _, r := range ratings {
		agg = agg.Apply(r)
	}
	return agg
}
