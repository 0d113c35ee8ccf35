package index

// Posting records how often, and where, a term occurs in one record.
type Posting struct {
	DocID     string `json:"doc_id"`
	Frequency int    `json:"frequency"`
	Positions []int  `json:"positions"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}
