package models

// Impression records a single flag evaluation. PreviousTime is 0 until the
// observer has seen the same evaluation outcome before; epoch-0 impressions
// do not occur in practice.
type Impression struct {
	KeyName      string `json:"keyName"`
	BucketingKey string `json:"bucketingKey,omitempty"`
	FeatureName  string `json:"feature"`
	Treatment    string `json:"treatment"`
	Label        string `json:"label"`
	ChangeNumber int64  `json:"changeNumber"`
	Time         int64  `json:"time"`
	PreviousTime int64  `json:"pt,omitempty"`
}
