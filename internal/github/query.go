package github

// The two query variants differ only in the languages sub-selection; the
// variant without it is noticeably cheaper for large accounts, so it is kept
// as a separate document rather than always requesting languages and
// discarding them.

const statsQuery = `
query userStats($login: String!, $from: DateTime!, $to: DateTime!, $first: Int!, $after: String) {
  user(login: $login) {
    login
    name
    avatarUrl
    bio
    pronouns
    twitterUsername
    openPRs: pullRequests(states: OPEN) { totalCount }
    closedPRs: pullRequests(states: CLOSED) { totalCount }
    mergedPRs: pullRequests(states: MERGED) { totalCount }
    openIssues: issues(states: OPEN) { totalCount }
    closedIssues: issues(states: CLOSED) { totalCount }
    contributionsCollection(from: $from, to: $to) { totalCommitContributions }
    repositories(first: $first, after: $after, ownerAffiliations: OWNER, isFork: false) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes { stargazerCount }
    }
  }
}`

const statsWithLanguagesQuery = `
query userStatsWithLanguages($login: String!, $from: DateTime!, $to: DateTime!, $first: Int!, $after: String) {
  user(login: $login) {
    login
    name
    avatarUrl
    bio
    pronouns
    twitterUsername
    openPRs: pullRequests(states: OPEN) { totalCount }
    closedPRs: pullRequests(states: CLOSED) { totalCount }
    mergedPRs: pullRequests(states: MERGED) { totalCount }
    openIssues: issues(states: OPEN) { totalCount }
    closedIssues: issues(states: CLOSED) { totalCount }
    contributionsCollection(from: $from, to: $to) { totalCommitContributions }
    repositories(first: $first, after: $after, ownerAffiliations: OWNER, isFork: false) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes {
        stargazerCount
        languages(first: 10, orderBy: {field: SIZE, direction: DESC}) {
          edges { size node { name color } }
        }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		User *userPayload `json:"user"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// userPayload mirrors the upstream response. Every field is optional on the
// wire; absent fields decode to zero values, so no access can fail at runtime.
type userPayload struct {
	Login           string `json:"login"`
	Name            string `json:"name"`
	AvatarURL       string `json:"avatarUrl"`
	Bio             string `json:"bio"`
	Pronouns        string `json:"pronouns"`
	TwitterUsername string `json:"twitterUsername"`

	OpenPRs      totalCount `json:"openPRs"`
	ClosedPRs    totalCount `json:"closedPRs"`
	MergedPRs    totalCount `json:"mergedPRs"`
	OpenIssues   totalCount `json:"openIssues"`
	ClosedIssues totalCount `json:"closedIssues"`

	ContributionsCollection struct {
		TotalCommitContributions int `json:"totalCommitContributions"`
	} `json:"contributionsCollection"`

	Repositories repositoriesPayload `json:"repositories"`
}

type totalCount struct {
	TotalCount int `json:"totalCount"`
}

type repositoriesPayload struct {
	TotalCount int              `json:"totalCount"`
	PageInfo   pageInfo         `json:"pageInfo"`
	Nodes      []repositoryNode `json:"nodes"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type repositoryNode struct {
	StargazerCount int               `json:"stargazerCount"`
	Languages      *languagesPayload `json:"languages"`
}

type languagesPayload struct {
	Edges []languageEdge `json:"edges"`
}

type languageEdge struct {
	Size int `json:"size"`
	Node struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	} `json:"node"`
}
