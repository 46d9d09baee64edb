package domain

// PRContext identifies the pull request being checked.
type PRContext struct {
	Owner    string
	Repo     string
	PRNumber int
	BaseRef  string
	HeadRef  string
	HeadSHA  string
}

// ChangedChart is a chart directory touched by a pull request.
type ChangedChart struct {
	Name string // from Chart.yaml
	Path string // path within the repository, e.g. "charts/my-app"
}
