package providers

import "github.com/opennews-pt/pt-news-extractor/internal/domain"

const firefoxUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:40.0) Gecko/20100101 Firefox/40.1"

func builtin() []Provider {
	return []Provider{publico(), cm()}
}

func publico() Provider {
	return Provider{
		ID:         string(domain.Publico),
		Name:       "Público",
		BaseURL:    "https://www.publico.pt",
		Hosts:      []string{"www.publico.pt"},
		SummaryAPI: "https://api.publico.pt/content/summary/scriptor_noticias",
		Login:      Login{URL: "https://www.publico.pt/api/user/login"},
		Endpoints: map[string]Endpoint{
			EndpointTag: {
				URL:           "https://www.publico.pt/api/list/{query}?page={index}",
				Format:        FormatJSON,
				FirstIndex:    1,
				Step:          1,
				Sentinel:      "[]",
				Descending:    true,
				ItemURLField:  "shareUrl",
				ItemDateField: "data",
			},
			EndpointKeyword: {
				URL:           "https://www.publico.pt/api/list/search/?query={query}&start={start}&end={end}&page={index}",
				Format:        FormatJSON,
				FirstIndex:    1,
				Step:          1,
				Sentinel:      "[]",
				Prefiltered:   true,
				QueryStyle:    QueryEscape,
				DateSeparator: "-",
				ItemURLField:  "fullUrl",
			},
		},
		Config: map[string]any{
			ConfigUserAgentKey: firefoxUserAgent,
		},
	}
}

func cm() Provider {
	return Provider{
		ID:       string(domain.CM),
		Name:     "Correio da Manhã",
		BaseURL:  "https://www.cmjornal.pt",
		Hosts:    []string{"www.cmjornal.pt", "www.vidas.pt"},
		Denylist: []string{"interativo", "interativa", "multimedia", "perguntas"},
		Login: Login{
			URL:      "https://aminhaconta.xl.pt/Async/Site/LoginHandler/LOGIN_WITH_THIRDPARTY",
			TokenURL: "https://www.cmjornal.pt/login/login?token={token}&returnUrl=https://www.cmjornal.pt",
		},
		Endpoints: map[string]Endpoint{
			EndpointTag: {
				URL:          "https://www.cmjornal.pt/{query}/loadmore/?friendlyUrl={query}&contentStartIndex={index}",
				Format:       FormatHTML,
				FirstIndex:   0,
				Step:         8,
				Sentinel:     "\r\n",
				Descending:   true,
				ItemSelector: "article h2 a",
				ItemAttr:     "data-name",
				StripSuffix:  "?ref",
			},
			EndpointKeyword: {
				URL:           "https://www.cmjornal.pt/pesquisa/loadmore/?Query={query}&FirstPosition={index}&LastPosition={last}&Sort=Date&RangeType=Date&FromStr={start}&ToStr={end}&ContentType=All&X-Requested-With=XMLHttpRequest",
				Format:        FormatHTML,
				FirstIndex:    0,
				Step:          9,
				Sentinel:      "\r\n",
				Prefiltered:   true,
				DateSeparator: "/",
				ItemSelector:  "article h2 a",
				ItemAttr:      "data-name",
				StripSuffix:   "?ref",
			},
			EndpointMoreAbout: {
				URL:          "https://www.cmjornal.pt/mais-sobre/loadmore?friendlyUrl=mais-sobre&urlRefParameters=?ref=Mais%20Sobre_BlocoMaisSobre&contentStartIndex={index}&searchKeywords={query}",
				Format:       FormatHTML,
				FirstIndex:   0,
				Step:         6,
				Sentinel:     "\r\n",
				Descending:   true,
				ItemSelector: "article h2 a",
				ItemAttr:     "data-name",
				StripSuffix:  "?ref",
			},
		},
		Config: map[string]any{
			ConfigUserAgentKey: firefoxUserAgent,
		},
	}
}
