package rpc

// Kind separates side-effect-free calls from state-changing ones.
type Kind uint8

const (
	Query Kind = iota + 1
	Mutation
)

func (k Kind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// ParseKind matches the wire name exactly.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "query":
		return Query, true
	case "mutation":
		return Mutation, true
	}
	return 0, false
}

// Method identifies one remotely callable operation.
type Method uint8

const (
	methodInvalid Method = iota

	DataSourceFetchPrivate
	GetApps
	GetActiveDeployments
	GetDeployments
	GetApp
	ExecQuery
	GetReleases
	GetRelease
	FindActiveDeployment
	LoadDom
	FindLastRelease
	GetLatestToolpadRelease

	CreateApp
	UpdateApp
	DuplicateApp
	DeleteApp
	CreateRelease
	CreateDeployment
	Deploy
	SaveDom

	methodCount
)

var methodInfo = [methodCount]struct {
	name string
	kind Kind
}{
	DataSourceFetchPrivate:  {"dataSourceFetchPrivate", Query},
	GetApps:                 {"getApps", Query},
	GetActiveDeployments:    {"getActiveDeployments", Query},
	GetDeployments:          {"getDeployments", Query},
	GetApp:                  {"getApp", Query},
	ExecQuery:               {"execQuery", Query},
	GetReleases:             {"getReleases", Query},
	GetRelease:              {"getRelease", Query},
	FindActiveDeployment:    {"findActiveDeployment", Query},
	LoadDom:                 {"loadDom", Query},
	FindLastRelease:         {"findLastRelease", Query},
	GetLatestToolpadRelease: {"getLatestToolpadRelease", Query},

	CreateApp:        {"createApp", Mutation},
	UpdateApp:        {"updateApp", Mutation},
	DuplicateApp:     {"duplicateApp", Mutation},
	DeleteApp:        {"deleteApp", Mutation},
	CreateRelease:    {"createRelease", Mutation},
	CreateDeployment: {"createDeployment", Mutation},
	Deploy:           {"deploy", Mutation},
	SaveDom:          {"saveDom", Mutation},
}

// ParseMethod matches the wire name exactly: no case folding, no prefixes.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "dataSourceFetchPrivate":
		return DataSourceFetchPrivate, true
	case "getApps":
		return GetApps, true
	case "getActiveDeployments":
		return GetActiveDeployments, true
	case "getDeployments":
		return GetDeployments, true
	case "getApp":
		return GetApp, true
	case "execQuery":
		return ExecQuery, true
	case "getReleases":
		return GetReleases, true
	case "getRelease":
		return GetRelease, true
	case "findActiveDeployment":
		return FindActiveDeployment, true
	case "loadDom":
		return LoadDom, true
	case "findLastRelease":
		return FindLastRelease, true
	case "getLatestToolpadRelease":
		return GetLatestToolpadRelease, true
	case "createApp":
		return CreateApp, true
	case "updateApp":
		return UpdateApp, true
	case "duplicateApp":
		return DuplicateApp, true
	case "deleteApp":
		return DeleteApp, true
	case "createRelease":
		return CreateRelease, true
	case "createDeployment":
		return CreateDeployment, true
	case "deploy":
		return Deploy, true
	case "saveDom":
		return SaveDom, true
	}
	return methodInvalid, false
}

func (m Method) Valid() bool {
	return m > methodInvalid && m < methodCount
}

func (m Method) String() string {
	if !m.Valid() {
		return "invalid"
	}
	return methodInfo[m].name
}

// Kind reports whether m is a query or a mutation.
func (m Method) Kind() Kind {
	if !m.Valid() {
		return 0
	}
	return methodInfo[m].kind
}

// AllMethods lists every known method in declaration order.
func AllMethods() []Method {
	out := make([]Method, 0, methodCount-1)
	for m := methodInvalid + 1; m < methodCount; m++ {
		out = append(out, m)
	}
	return out
}
